package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prosevault/prosevault/internal/archive"
	"github.com/prosevault/prosevault/internal/story"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// The pool is capped at one connection: this store assumes cooperative
// single-process, single-writer ownership.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// AllModels returns every GORM model owned by the entity store.
func AllModels() []any {
	return []any{
		&story.Project{},
		&story.SceneCard{},
		&story.ProseVersion{},
		&story.ChainLink{},
		&story.Character{},
		&story.Sequence{},
		&story.ValidationLog{},
		&archive.BackupRecord{},
		&migrationRecord{},
	}
}
