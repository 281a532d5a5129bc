package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillSceneWordCounts = "2026-08-10_backfill_scene_word_counts"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillSceneWordCounts, apply: backfillSceneWordCounts},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillSceneWordCounts repairs scene cards whose denormalized cache was
// written before the version manager maintained it.
func backfillSceneWordCounts(db *gorm.DB) error {
	return db.Exec(`
		UPDATE scene_cards SET
			word_count = COALESCE((
				SELECT pv.word_count FROM prose_versions pv
				WHERE pv.project_id = scene_cards.project_id
				  AND pv.scene_id = scene_cards.id
				  AND pv.is_current = 1
			), word_count),
			reading_minutes = COALESCE((
				SELECT pv.reading_minutes FROM prose_versions pv
				WHERE pv.project_id = scene_cards.project_id
				  AND pv.scene_id = scene_cards.id
				  AND pv.is_current = 1
			), reading_minutes)
		WHERE EXISTS (
			SELECT 1 FROM prose_versions pv
			WHERE pv.project_id = scene_cards.project_id
			  AND pv.scene_id = scene_cards.id
			  AND pv.is_current = 1
			  AND pv.word_count <> scene_cards.word_count
		)`).Error
}
