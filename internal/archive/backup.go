package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prosevault/prosevault/internal/story"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingRepository = errors.New("repository is required")
	errMissingDirectory  = errors.New("backup directory is required")
	noOpLogger           = zap.NewNop()
)

const defaultIncrementalFallback = 24 * time.Hour

// Options configure backup behavior. The incremental fallback window is
// deliberately configurable rather than a hardcoded constant.
type Options struct {
	// Dir is the caller-owned directory backup files are written to.
	Dir string
	// Compress gzips structured snapshots.
	Compress bool
	// IncludeProse carries current and historical prose versions in full
	// project backups.
	IncludeProse bool
	// EngineSnapshot switches whole-store backups to a raw byte-for-byte
	// copy of the storage file at EnginePath.
	EngineSnapshot bool
	EnginePath     string
	// MaxBackupsToKeep bounds completed records per retention scope;
	// zero disables retention.
	MaxBackupsToKeep int
	// IncrementalFallback is the "since" window used when a project has no
	// prior completed incremental backup. Defaults to 24h.
	IncrementalFallback time.Duration
}

// ManagerConfig carries the dependencies of a backup Manager.
type ManagerConfig struct {
	Repository *story.Repository
	Clock      func() time.Time
	IDProvider story.IDProvider
	Logger     *zap.Logger
	Options    Options
}

// Manager snapshots entity-store state to durable backup files. Each
// operation runs PENDING -> gather -> serialize -> checksum -> COMPLETED,
// or finalizes the record as FAILED with partial output removed.
type Manager struct {
	repo   *story.Repository
	db     *gorm.DB
	clock  func() time.Time
	ids    story.IDProvider
	logger *zap.Logger
	opts   Options
}

// NewManager validates the configuration and constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("archive: new manager: %w", errMissingRepository)
	}
	if cfg.Options.Dir == "" {
		return nil, fmt.Errorf("archive: new manager: %w", errMissingDirectory)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = story.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	opts := cfg.Options
	if opts.IncrementalFallback <= 0 {
		opts.IncrementalFallback = defaultIncrementalFallback
	}
	return &Manager{
		repo:   cfg.Repository,
		db:     cfg.Repository.DB(),
		clock:  clock,
		ids:    ids,
		logger: logger,
		opts:   opts,
	}, nil
}

// BackupFull snapshots one project's entire entity graph, or every project
// when projectID is empty. With EngineSnapshot configured and no project
// given, the underlying storage file is copied byte for byte instead.
func (m *Manager) BackupFull(ctx context.Context, projectID, description string) (*BackupRecord, error) {
	if projectID == "" && m.opts.EngineSnapshot {
		return m.backupEngine(ctx, description)
	}
	return m.run(ctx, BackupTypeFull, projectID, description, func(ctx context.Context, envelope *Envelope) error {
		if projectID != "" {
			return m.gatherProject(ctx, projectID, envelope)
		}
		projects, err := m.repo.ListProjects(ctx, story.ProjectFilter{})
		if err != nil {
			return err
		}
		envelope.Projects = projects
		for _, project := range projects {
			var part Envelope
			if err := m.gatherProject(ctx, project.ID, &part); err != nil {
				return err
			}
			envelope.SceneCards = append(envelope.SceneCards, part.SceneCards...)
			envelope.ChainLinks = append(envelope.ChainLinks, part.ChainLinks...)
			envelope.Characters = append(envelope.Characters, part.Characters...)
			envelope.Sequences = append(envelope.Sequences, part.Sequences...)
			envelope.ProseContent = append(envelope.ProseContent, part.ProseContent...)
			envelope.ValidationLogs = append(envelope.ValidationLogs, part.ValidationLogs...)
		}
		return nil
	})
}

// BackupIncremental snapshots entities updated at or after since. A nil
// since defaults to the last completed incremental backup for the project,
// falling back to the configured window.
func (m *Manager) BackupIncremental(ctx context.Context, projectID string, since *time.Time, description string) (*BackupRecord, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: incremental backup requires a project", story.ErrConstraintViolation)
	}
	cutoff, err := m.incrementalSince(ctx, projectID, since)
	if err != nil {
		return nil, err
	}
	return m.run(ctx, BackupTypeIncremental, projectID, description, func(ctx context.Context, envelope *Envelope) error {
		project, err := m.repo.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		envelope.Project = project

		scenes, err := story.NewSceneQuery(m.db, projectID).UpdatedSince(cutoff).Execute(ctx)
		if err != nil {
			return err
		}
		envelope.ChangedScenes = scenes

		links, err := story.NewLinkQuery(m.db, projectID).UpdatedSince(cutoff).Execute(ctx)
		if err != nil {
			return err
		}
		envelope.ChangedLinks = links

		var versions []story.ProseVersion
		err = m.db.WithContext(ctx).
			Where("project_id = ? AND updated_at >= ?", projectID, cutoff).
			Find(&versions).Error
		if err != nil {
			return fmt.Errorf("archive: gather changed prose: %w", err)
		}
		envelope.ChangedProse = versions
		return nil
	})
}

// BackupScenes snapshots a subset of a project's scenes (all when sceneIDs
// is empty) plus their full version history.
func (m *Manager) BackupScenes(ctx context.Context, projectID string, sceneIDs []string, description string) (*BackupRecord, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: scene backup requires a project", story.ErrConstraintViolation)
	}
	return m.run(ctx, BackupTypeScenes, projectID, description, func(ctx context.Context, envelope *Envelope) error {
		return m.gatherScenes(ctx, projectID, sceneIDs, envelope)
	})
}

// BackupSequence snapshots a sequence, its member scenes and their
// versions.
func (m *Manager) BackupSequence(ctx context.Context, projectID, sequenceID, description string) (*BackupRecord, error) {
	return m.run(ctx, BackupTypeSequence, projectID, description, func(ctx context.Context, envelope *Envelope) error {
		sequence, err := m.repo.GetSequence(ctx, projectID, sequenceID)
		if err != nil {
			return err
		}
		envelope.Sequences = []story.Sequence{*sequence}
		return m.gatherScenes(ctx, projectID, sequence.SceneOrder, envelope)
	})
}

// ListBackups returns backup records, optionally scoped to one project,
// newest first.
func (m *Manager) ListBackups(ctx context.Context, projectID string) ([]BackupRecord, error) {
	query := m.db.WithContext(ctx).Model(&BackupRecord{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var records []BackupRecord
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("archive: list backups: %w", err)
	}
	return records, nil
}

// GetBackup loads one backup record.
func (m *Manager) GetBackup(ctx context.Context, backupID string) (*BackupRecord, error) {
	var record BackupRecord
	err := m.db.WithContext(ctx).Where("id = ?", backupID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: backup %q", story.ErrNotFound, backupID)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get backup: %w", err)
	}
	return &record, nil
}

// DeleteBackup removes a backup record and its underlying file.
func (m *Manager) DeleteBackup(ctx context.Context, backupID string) error {
	record, err := m.GetBackup(ctx, backupID)
	if err != nil {
		return err
	}
	if record.Path != "" {
		if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("archive: remove backup file: %w", err)
		}
	}
	if err := m.db.WithContext(ctx).Where("id = ?", backupID).Delete(&BackupRecord{}).Error; err != nil {
		return fmt.Errorf("archive: delete backup record: %w", err)
	}
	return nil
}

// run drives the backup state machine around a gather function.
func (m *Manager) run(ctx context.Context, backupType BackupType, projectID, description string,
	gather func(context.Context, *Envelope) error) (*BackupRecord, error) {

	record, err := m.startRecord(ctx, backupType, projectID, description, m.structuredFormat())
	if err != nil {
		return nil, err
	}

	envelope := &Envelope{Metadata: Metadata{
		BackupID:  record.ID,
		Type:      backupType,
		ProjectID: projectID,
		CreatedAt: record.CreatedAt,
		Format:    record.Format,
	}}
	if err := gather(ctx, envelope); err != nil {
		return record, m.fail(ctx, record, "", err)
	}

	data, err := envelope.encode()
	if err != nil {
		return record, m.fail(ctx, record, "", err)
	}

	path := filepath.Join(m.opts.Dir, m.fileName(record))
	if err := m.writeAndComplete(ctx, record, path, data, envelope.itemCount()); err != nil {
		return record, err
	}

	m.logger.Info("backup completed",
		zap.String("backup_id", record.ID),
		zap.String("type", string(backupType)),
		zap.String("project_id", projectID),
		zap.Int("items", record.ItemCount),
		zap.Int64("bytes", record.SizeBytes))

	m.enforceRetention(ctx, projectID)
	return record, nil
}

// backupEngine copies the raw storage file. These snapshots are for
// operator-level disaster recovery only; Recover refuses them.
func (m *Manager) backupEngine(ctx context.Context, description string) (*BackupRecord, error) {
	format := FormatEngineCopy
	if m.opts.Compress {
		format = FormatEngineCopyGzip
	}
	record, err := m.startRecord(ctx, BackupTypeEngine, "", description, format)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(m.opts.EnginePath)
	if err != nil {
		return record, m.fail(ctx, record, "", fmt.Errorf("archive: read engine file: %w", err))
	}
	data := raw
	if format == FormatEngineCopyGzip {
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(raw); err != nil {
			return record, m.fail(ctx, record, "", fmt.Errorf("archive: gzip engine file: %w", err))
		}
		if err := writer.Close(); err != nil {
			return record, m.fail(ctx, record, "", fmt.Errorf("archive: gzip engine file: %w", err))
		}
		data = buf.Bytes()
	}

	path := filepath.Join(m.opts.Dir, m.fileName(record))
	if err := m.writeAndComplete(ctx, record, path, data, 1); err != nil {
		return record, err
	}
	m.logger.Info("engine snapshot completed",
		zap.String("backup_id", record.ID), zap.Int64("bytes", record.SizeBytes))
	m.enforceRetention(ctx, "")
	return record, nil
}

func (m *Manager) startRecord(ctx context.Context, backupType BackupType, projectID, description string, format BackupFormat) (*BackupRecord, error) {
	id, err := m.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("archive: start backup: %w", err)
	}
	record := &BackupRecord{
		ID:          id,
		Type:        backupType,
		ProjectID:   projectID,
		Format:      format,
		Description: description,
		Status:      StatusInProgress,
		CreatedAt:   m.clock().UTC(),
	}
	if err := m.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("archive: start backup: %w", err)
	}
	return record, nil
}

// writeAndComplete writes the file fully, computes the checksum over the
// on-disk bytes, then marks the record completed, in that order, so a
// reader never observes a completed record with a half-written file.
func (m *Manager) writeAndComplete(ctx context.Context, record *BackupRecord, path string, data []byte, items int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return m.fail(ctx, record, path, fmt.Errorf("archive: create backup dir: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return m.fail(ctx, record, path, fmt.Errorf("archive: write backup file: %w", err))
	}
	written, err := os.ReadFile(path)
	if err != nil {
		return m.fail(ctx, record, path, fmt.Errorf("archive: verify backup file: %w", err))
	}

	record.Path = path
	record.Checksum = fileChecksum(written)
	record.SizeBytes = int64(len(written))
	record.ItemCount = items
	record.Status = StatusCompleted
	err = m.db.WithContext(ctx).Model(&BackupRecord{}).Where("id = ?", record.ID).
		Updates(map[string]any{
			"path":       record.Path,
			"checksum":   record.Checksum,
			"size_bytes": record.SizeBytes,
			"item_count": record.ItemCount,
			"status":     record.Status,
		}).Error
	if err != nil {
		return m.fail(ctx, record, path, fmt.Errorf("archive: finalize backup record: %w", err))
	}
	return nil
}

// fail finalizes the record as FAILED, removes any partial output, and
// returns the original error. The failure is recorded for audit and raised.
func (m *Manager) fail(ctx context.Context, record *BackupRecord, partialPath string, cause error) error {
	if partialPath != "" {
		if err := os.Remove(partialPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("failed to remove partial backup file",
				zap.String("path", partialPath), zap.Error(err))
		}
	}
	record.Status = StatusFailed
	record.ErrorMessage = cause.Error()
	err := m.db.WithContext(ctx).Model(&BackupRecord{}).Where("id = ?", record.ID).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": record.ErrorMessage,
		}).Error
	if err != nil {
		m.logger.Error("failed to finalize failed backup record",
			zap.String("backup_id", record.ID), zap.Error(err))
	}
	m.logger.Error("backup failed", zap.String("backup_id", record.ID), zap.Error(cause))
	return cause
}

func (m *Manager) gatherProject(ctx context.Context, projectID string, envelope *Envelope) error {
	project, err := m.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if envelope.Project == nil && len(envelope.Projects) == 0 {
		envelope.Project = project
	}
	if envelope.SceneCards, err = appendScenes(ctx, m.repo, projectID, envelope.SceneCards); err != nil {
		return err
	}
	links, err := m.repo.ListChainLinks(ctx, projectID, story.LinkFilter{})
	if err != nil {
		return err
	}
	envelope.ChainLinks = append(envelope.ChainLinks, links...)
	characters, err := m.repo.ListCharacters(ctx, projectID)
	if err != nil {
		return err
	}
	envelope.Characters = append(envelope.Characters, characters...)
	sequences, err := m.repo.ListSequences(ctx, projectID)
	if err != nil {
		return err
	}
	envelope.Sequences = append(envelope.Sequences, sequences...)
	logs, err := m.repo.ListValidationLogs(ctx, projectID, "")
	if err != nil {
		return err
	}
	envelope.ValidationLogs = append(envelope.ValidationLogs, logs...)

	if m.opts.IncludeProse {
		var versions []story.ProseVersion
		err = m.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&versions).Error
		if err != nil {
			return fmt.Errorf("archive: gather prose: %w", err)
		}
		envelope.ProseContent = append(envelope.ProseContent, versions...)
	}
	return nil
}

func (m *Manager) gatherScenes(ctx context.Context, projectID string, sceneIDs []string, envelope *Envelope) error {
	project, err := m.repo.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	envelope.Project = project

	scenes, err := m.repo.ListSceneCards(ctx, projectID, story.SceneFilter{})
	if err != nil {
		return err
	}
	if len(sceneIDs) > 0 {
		wanted := make(map[string]bool, len(sceneIDs))
		for _, id := range sceneIDs {
			wanted[id] = true
		}
		kept := scenes[:0]
		for _, scene := range scenes {
			if wanted[scene.ID] {
				kept = append(kept, scene)
				delete(wanted, scene.ID)
			}
		}
		for _, id := range sceneIDs {
			if wanted[id] {
				return fmt.Errorf("%w: scene card %q in project %q", story.ErrNotFound, id, projectID)
			}
		}
		scenes = kept
	}
	envelope.SceneCards = append(envelope.SceneCards, scenes...)

	ids := make([]string, len(scenes))
	for i, scene := range scenes {
		ids[i] = scene.ID
	}
	if len(ids) > 0 {
		var versions []story.ProseVersion
		err = m.db.WithContext(ctx).
			Where("project_id = ? AND scene_id IN ?", projectID, ids).
			Find(&versions).Error
		if err != nil {
			return fmt.Errorf("archive: gather scene prose: %w", err)
		}
		envelope.ProseContent = append(envelope.ProseContent, versions...)
	}
	return nil
}

func appendScenes(ctx context.Context, repo *story.Repository, projectID string, dst []story.SceneCard) ([]story.SceneCard, error) {
	scenes, err := repo.ListSceneCards(ctx, projectID, story.SceneFilter{})
	if err != nil {
		return nil, err
	}
	return append(dst, scenes...), nil
}

// incrementalSince resolves the cutoff for an incremental backup.
func (m *Manager) incrementalSince(ctx context.Context, projectID string, since *time.Time) (time.Time, error) {
	if since != nil {
		return *since, nil
	}
	var last BackupRecord
	err := m.db.WithContext(ctx).
		Where("project_id = ? AND type = ? AND status = ?", projectID, BackupTypeIncremental, StatusCompleted).
		Order("created_at DESC").
		Take(&last).Error
	if err == nil {
		return last.CreatedAt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, fmt.Errorf("archive: resolve incremental cutoff: %w", err)
	}
	return m.clock().UTC().Add(-m.opts.IncrementalFallback), nil
}

func (m *Manager) structuredFormat() BackupFormat {
	if m.opts.Compress {
		return FormatJSONGzip
	}
	return FormatJSON
}

func (m *Manager) fileName(record *BackupRecord) string {
	stamp := record.CreatedAt.Format("20060102T150405")
	switch record.Format {
	case FormatEngineCopy:
		return fmt.Sprintf("engine_%s_%s.db", stamp, record.ID)
	case FormatEngineCopyGzip:
		return fmt.Sprintf("engine_%s_%s.db.gz", stamp, record.ID)
	case FormatJSONGzip:
		return fmt.Sprintf("backup_%s_%s.json.gz", stamp, record.ID)
	default:
		return fmt.Sprintf("backup_%s_%s.json", stamp, record.ID)
	}
}
