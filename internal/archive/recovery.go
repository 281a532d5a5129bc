package archive

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prosevault/prosevault/internal/story"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecoveryOptions steer one Recover call.
type RecoveryOptions struct {
	// TargetProjectID remaps every restored entity's project reference.
	TargetProjectID string
	// Overwrite updates entities whose natural key already exists; when
	// false such entities are skipped and counted.
	Overwrite bool
}

// Counts tallies one entity type's restore outcome.
type Counts struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Report is the per-entity-type outcome of one Recover call.
type Report struct {
	BackupID       string
	Projects       Counts
	Scenes         Counts
	Links          Counts
	Characters     Counts
	Sequences      Counts
	Versions       Counts
	ValidationLogs Counts
}

// RecoveryConfig carries the dependencies of a Recovery manager.
type RecoveryConfig struct {
	Repository *story.Repository
	IDProvider story.IDProvider
	Logger     *zap.Logger
}

// Recovery validates and restores backup snapshots into the entity store.
type Recovery struct {
	db     *gorm.DB
	ids    story.IDProvider
	logger *zap.Logger
}

// NewRecovery validates the configuration and constructs a Recovery.
func NewRecovery(cfg RecoveryConfig) (*Recovery, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("archive: new recovery: %w", errMissingRepository)
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = story.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Recovery{db: cfg.Repository.DB(), ids: ids, logger: logger}, nil
}

// Recover restores the identified backup. The record must be completed and
// its file must match the stored checksum; every write happens in one
// transaction that rolls back wholesale on error, so no caller ever
// observes a half-restored store.
func (r *Recovery) Recover(ctx context.Context, backupID string, opts RecoveryOptions) (*Report, error) {
	var record BackupRecord
	err := r.db.WithContext(ctx).Where("id = ?", backupID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: backup %q", story.ErrNotFound, backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: load backup record: %w", err)
	}
	if record.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: backup %q has status %s", ErrBackupNotUsable, backupID, record.Status)
	}
	if record.Format == FormatEngineCopy || record.Format == FormatEngineCopyGzip {
		return nil, fmt.Errorf("%w: engine snapshots are not supported for programmatic recovery", ErrBackupNotUsable)
	}

	data, err := os.ReadFile(record.Path)
	if err != nil {
		return nil, fmt.Errorf("archive: read backup file: %w", err)
	}
	if checksum := fileChecksum(data); checksum != record.Checksum {
		return nil, fmt.Errorf("%w: backup %q checksum %s does not match stored %s",
			ErrIntegrity, backupID, checksum, record.Checksum)
	}

	envelope, err := decodeEnvelope(data, record.Format)
	if err != nil {
		return nil, err
	}

	report := &Report{BackupID: backupID}
	txErr := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch envelope.Metadata.Type {
		case BackupTypeFull, BackupTypeScenes, BackupTypeSequence, BackupTypeIncremental:
			return r.restoreEnvelope(tx, envelope, opts, report)
		default:
			return fmt.Errorf("%w: unknown backup type %q", ErrInvalidFormat, envelope.Metadata.Type)
		}
	})
	if txErr != nil {
		if errors.Is(txErr, ErrInvalidFormat) {
			return nil, txErr
		}
		return nil, fmt.Errorf("%w: %w", ErrRecovery, txErr)
	}

	r.logger.Info("recovery completed",
		zap.String("backup_id", backupID),
		zap.String("target_project", opts.TargetProjectID),
		zap.Bool("overwrite", opts.Overwrite))
	return report, nil
}

// restoreEnvelope walks every payload key present, tolerating missing
// optional ones. Incremental payloads reuse the same routines via their
// changed* keys.
func (r *Recovery) restoreEnvelope(tx *gorm.DB, envelope *Envelope, opts RecoveryOptions, report *Report) error {
	projects := envelope.Projects
	if envelope.Project != nil {
		projects = append(projects, *envelope.Project)
	}
	for _, project := range projects {
		if err := restoreProject(tx, project, opts, &report.Projects); err != nil {
			return err
		}
	}
	for _, scene := range append(envelope.SceneCards, envelope.ChangedScenes...) {
		if err := restoreScene(tx, scene, opts, &report.Scenes); err != nil {
			return err
		}
	}
	for _, link := range append(envelope.ChainLinks, envelope.ChangedLinks...) {
		if err := restoreLink(tx, link, opts, &report.Links); err != nil {
			return err
		}
	}
	for _, character := range envelope.Characters {
		if err := restoreCharacter(tx, character, opts, &report.Characters); err != nil {
			return err
		}
	}
	for _, sequence := range envelope.Sequences {
		if err := restoreSequence(tx, sequence, opts, &report.Sequences); err != nil {
			return err
		}
	}
	for _, version := range append(envelope.ProseContent, envelope.ChangedProse...) {
		if err := r.restoreVersion(tx, version, opts, &report.Versions); err != nil {
			return err
		}
	}
	for _, log := range envelope.ValidationLogs {
		if err := r.restoreValidationLog(tx, log, opts, &report.ValidationLogs); err != nil {
			return err
		}
	}
	return nil
}

func remapProject(projectID string, opts RecoveryOptions) string {
	if opts.TargetProjectID != "" {
		return opts.TargetProjectID
	}
	return projectID
}

// upsert implements the shared skip/update/insert policy against one
// natural key.
func upsert(tx *gorm.DB, model any, cond string, args []any, opts RecoveryOptions, counts *Counts,
	insert func() error, update func() error) error {

	var count int64
	if err := tx.Model(model).Where(cond, args...).Count(&count).Error; err != nil {
		return fmt.Errorf("archive: restore lookup: %w", err)
	}
	if count > 0 {
		if !opts.Overwrite {
			counts.Skipped++
			return nil
		}
		if err := update(); err != nil {
			return fmt.Errorf("archive: restore update: %w", err)
		}
		counts.Updated++
		return nil
	}
	if err := insert(); err != nil {
		return fmt.Errorf("archive: restore insert: %w", err)
	}
	counts.Inserted++
	return nil
}

func restoreProject(tx *gorm.DB, project story.Project, opts RecoveryOptions, counts *Counts) error {
	project.ID = remapProject(project.ID, opts)
	return upsert(tx, &story.Project{}, "id = ?", []any{project.ID}, opts, counts,
		func() error { return tx.Create(&project).Error },
		func() error {
			return tx.Model(&story.Project{}).Where("id = ?", project.ID).
				Updates(map[string]any{
					"title":             project.Title,
					"target_word_count": project.TargetWordCount,
					"status":            project.Status,
				}).Error
		})
}

func restoreScene(tx *gorm.DB, scene story.SceneCard, opts RecoveryOptions, counts *Counts) error {
	scene.ProjectID = remapProject(scene.ProjectID, opts)
	return upsert(tx, &story.SceneCard{}, "project_id = ? AND id = ?",
		[]any{scene.ProjectID, scene.ID}, opts, counts,
		func() error { return tx.Create(&scene).Error },
		func() error {
			return tx.Model(&story.SceneCard{}).
				Where("project_id = ? AND id = ?", scene.ProjectID, scene.ID).
				Updates(map[string]any{
					"kind":            scene.Kind,
					"pov":             scene.POV,
					"viewpoint":       scene.Viewpoint,
					"tense":           scene.Tense,
					"crucible":        scene.Crucible,
					"place":           scene.Place,
					"time":            scene.Time,
					"exposition_tags": scene.ExpositionTags,
					"chain_link_note": scene.ChainLinkNote,
					"plan":            scene.Plan,
					"word_count":      scene.WordCount,
					"reading_minutes": scene.ReadingMinutes,
				}).Error
		})
}

func restoreLink(tx *gorm.DB, link story.ChainLink, opts RecoveryOptions, counts *Counts) error {
	link.ProjectID = remapProject(link.ProjectID, opts)
	return upsert(tx, &story.ChainLink{}, "project_id = ? AND id = ?",
		[]any{link.ProjectID, link.ID}, opts, counts,
		func() error { return tx.Create(&link).Error },
		func() error {
			return tx.Model(&story.ChainLink{}).
				Where("project_id = ? AND id = ?", link.ProjectID, link.ID).
				Updates(map[string]any{
					"link_type":         link.LinkType,
					"transition_style":  link.TransitionStyle,
					"source_scene_id":   link.SourceSceneID,
					"target_scene_id":   link.TargetSceneID,
					"source_kind":       link.SourceKind,
					"source_pov":        link.SourcePOV,
					"target_kind":       link.TargetKind,
					"target_pov":        link.TargetPOV,
					"trigger":           link.Trigger,
					"target_seed":       link.TargetSeed,
					"bridging_text":     link.BridgingText,
					"valid":             link.Valid,
					"validation_errors": link.ValidationErrs,
					"score":             link.Score,
					"story_context":     link.StoryContext,
					"state_changes":     link.StateChanges,
				}).Error
		})
}

func restoreCharacter(tx *gorm.DB, character story.Character, opts RecoveryOptions, counts *Counts) error {
	character.ProjectID = remapProject(character.ProjectID, opts)
	return upsert(tx, &story.Character{}, "project_id = ? AND id = ?",
		[]any{character.ProjectID, character.ID}, opts, counts,
		func() error { return tx.Create(&character).Error },
		func() error {
			return tx.Model(&story.Character{}).
				Where("project_id = ? AND id = ?", character.ProjectID, character.ID).
				Updates(map[string]any{
					"name":      character.Name,
					"role":      character.Role,
					"pov_notes": character.POVNotes,
					"traits":    character.Traits,
				}).Error
		})
}

func restoreSequence(tx *gorm.DB, sequence story.Sequence, opts RecoveryOptions, counts *Counts) error {
	sequence.ProjectID = remapProject(sequence.ProjectID, opts)
	return upsert(tx, &story.Sequence{}, "project_id = ? AND id = ?",
		[]any{sequence.ProjectID, sequence.ID}, opts, counts,
		func() error { return tx.Create(&sequence).Error },
		func() error {
			return tx.Model(&story.Sequence{}).
				Where("project_id = ? AND id = ?", sequence.ProjectID, sequence.ID).
				Updates(map[string]any{
					"title":       sequence.Title,
					"scene_order": sequence.SceneOrder,
				}).Error
		})
}

func (r *Recovery) restoreVersion(tx *gorm.DB, version story.ProseVersion, opts RecoveryOptions, counts *Counts) error {
	remapped := remapProject(version.ProjectID, opts)
	if remapped != version.ProjectID {
		// A remapped copy must not collide with the original row's key.
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("archive: restore version id: %w", err)
		}
		version.ID = id
		version.ProjectID = remapped
	}
	// The store may hold versions newer than the snapshot. Restoring the
	// snapshot's current row must retire every other current row for the
	// scene, or the scene ends up with two current versions.
	retireOthers := func() error {
		if !version.IsCurrent {
			return nil
		}
		err := tx.Model(&story.ProseVersion{}).
			Where("project_id = ? AND scene_id = ? AND version <> ? AND is_current = ?",
				version.ProjectID, version.SceneID, version.Version, true).
			Update("is_current", false).Error
		if err != nil {
			return fmt.Errorf("archive: retire current versions: %w", err)
		}
		return nil
	}
	return upsert(tx, &story.ProseVersion{}, "project_id = ? AND scene_id = ? AND version = ?",
		[]any{version.ProjectID, version.SceneID, version.Version}, opts, counts,
		func() error {
			if err := retireOthers(); err != nil {
				return err
			}
			return tx.Create(&version).Error
		},
		func() error {
			if err := retireOthers(); err != nil {
				return err
			}
			return tx.Model(&story.ProseVersion{}).
				Where("project_id = ? AND scene_id = ? AND version = ?",
					version.ProjectID, version.SceneID, version.Version).
				Updates(map[string]any{
					"body":             version.Body,
					"content_type":     version.ContentType,
					"content_hash":     version.ContentHash,
					"note":             version.Note,
					"is_current":       version.IsCurrent,
					"word_count":       version.WordCount,
					"char_count":       version.CharCount,
					"reading_minutes":  version.ReadingMinutes,
					"sentence_count":   version.SentenceCount,
					"avg_sentence_len": version.AvgSentenceLen,
					"readability":      version.Readability,
					"sentiment":        version.Sentiment,
					"dialogue_ratio":   version.DialogueRatio,
					"keywords":         version.Keywords,
				}).Error
		})
}

func (r *Recovery) restoreValidationLog(tx *gorm.DB, log story.ValidationLog, opts RecoveryOptions, counts *Counts) error {
	remapped := remapProject(log.ProjectID, opts)
	if remapped != log.ProjectID {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("archive: restore validation log id: %w", err)
		}
		log.ID = id
		log.ProjectID = remapped
	}
	return upsert(tx, &story.ValidationLog{}, "id = ?", []any{log.ID}, opts, counts,
		func() error { return tx.Create(&log).Error },
		func() error {
			return tx.Model(&story.ValidationLog{}).Where("id = ?", log.ID).
				Updates(map[string]any{
					"project_id": log.ProjectID,
					"scene_id":   log.SceneID,
					"validator":  log.Validator,
					"passed":     log.Passed,
					"score":      log.Score,
					"detail":     log.Detail,
				}).Error
		})
}
