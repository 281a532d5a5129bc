package prose

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prosevault/prosevault/internal/story"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateContent indicates that byte-identical prose is already
	// versioned for the scene.
	ErrDuplicateContent = errors.New("prose: duplicate content")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const firstVersion = "1.0.0"

// ManagerConfig carries the dependencies of a version Manager.
type ManagerConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider story.IDProvider
	Logger     *zap.Logger
}

// Manager enforces the versioning protocol for scene prose: monotonic
// version numbers, a single current version, duplicate-content rejection,
// and rollback as a forward operation.
type Manager struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    story.IDProvider
	logger *zap.Logger
}

// NewManager validates the configuration and constructs a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("prose: new manager: %w", errMissingDatabase)
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
	return &Manager{db: cfg.Database, clock: clock, ids: ids, logger: logger}, nil
}

// ContentHash is the fingerprint used for duplicate detection.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// CreateVersion appends a new current prose version for a scene. Identical
// content is rejected with ErrDuplicateContent naming the colliding
// version. The previous current version is flipped off, the new row
// inserted, and the scene's denormalized word-count cache refreshed, all
// in one transaction.
func (m *Manager) CreateVersion(ctx context.Context, projectID, sceneID, body, note, contentType string) (*story.ProseVersion, error) {
	return m.create(ctx, projectID, sceneID, body, note, contentType, false)
}

// create is the shared append path. Rollback sets allowDuplicate because the
// restored text is by definition identical to a historical version.
func (m *Manager) create(ctx context.Context, projectID, sceneID, body, note, contentType string, allowDuplicate bool) (*story.ProseVersion, error) {
	if contentType == "" {
		contentType = "prose"
	}
	hash := ContentHash(body)
	metrics := Analyze(body)

	id, err := m.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("prose: create version: %w", err)
	}

	version := &story.ProseVersion{
		ID:             id,
		ProjectID:      projectID,
		SceneID:        sceneID,
		Body:           body,
		ContentType:    contentType,
		ContentHash:    hash,
		Note:           note,
		IsCurrent:      true,
		WordCount:      metrics.WordCount,
		CharCount:      metrics.CharCount,
		ReadingMinutes: metrics.ReadingMinutes,
		SentenceCount:  metrics.SentenceCount,
		AvgSentenceLen: metrics.AvgSentenceLen,
		Readability:    metrics.Readability,
		Sentiment:      metrics.Sentiment,
		DialogueRatio:  metrics.DialogueRatio,
		Keywords:       metrics.Keywords,
	}

	txErr := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var scene story.SceneCard
		err := tx.Where("project_id = ? AND id = ?", projectID, sceneID).Take(&scene).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: scene card %q in project %q", story.ErrNotFound, sceneID, projectID)
		}
		if err != nil {
			return fmt.Errorf("prose: load scene: %w", err)
		}

		var existing []story.ProseVersion
		err = tx.Select("version", "content_hash").
			Where("project_id = ? AND scene_id = ?", projectID, sceneID).
			Find(&existing).Error
		if err != nil {
			return fmt.Errorf("prose: load versions: %w", err)
		}
		if !allowDuplicate {
			for _, prior := range existing {
				if prior.ContentHash == hash {
					return fmt.Errorf("%w: identical to version %s of scene %q",
						ErrDuplicateContent, prior.Version, sceneID)
				}
			}
		}
		version.Version = nextVersion(existing)

		if err := tx.Model(&story.ProseVersion{}).
			Where("project_id = ? AND scene_id = ? AND is_current = ?", projectID, sceneID, true).
			Update("is_current", false).Error; err != nil {
			return fmt.Errorf("prose: retire current version: %w", err)
		}
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("prose: insert version: %w", err)
		}
		if err := tx.Model(&story.SceneCard{}).
			Where("project_id = ? AND id = ?", projectID, sceneID).
			Updates(map[string]any{
				"word_count":      metrics.WordCount,
				"reading_minutes": metrics.ReadingMinutes,
			}).Error; err != nil {
			return fmt.Errorf("prose: refresh scene cache: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	m.logger.Info("prose version created",
		zap.String("project_id", projectID),
		zap.String("scene_id", sceneID),
		zap.String("version", version.Version),
		zap.Int("word_count", version.WordCount))
	return version, nil
}

// Rollback re-creates the text of targetVersion as a new forward version.
// The historical row is never resurrected or mutated; history stays
// append-only and linear.
func (m *Manager) Rollback(ctx context.Context, projectID, sceneID, targetVersion string) (*story.ProseVersion, error) {
	target, err := m.GetVersion(ctx, projectID, sceneID, targetVersion)
	if err != nil {
		return nil, err
	}
	note := fmt.Sprintf("rollback to %s", targetVersion)
	return m.create(ctx, projectID, sceneID, target.Body, note, target.ContentType, true)
}

// GetVersion loads one version row by its version string.
func (m *Manager) GetVersion(ctx context.Context, projectID, sceneID, versionNumber string) (*story.ProseVersion, error) {
	var version story.ProseVersion
	err := m.db.WithContext(ctx).
		Where("project_id = ? AND scene_id = ? AND version = ?", projectID, sceneID, versionNumber).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: version %s of scene %q", story.ErrNotFound, versionNumber, sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("prose: get version: %w", err)
	}
	return &version, nil
}

// CurrentVersion loads the scene's single current version.
func (m *Manager) CurrentVersion(ctx context.Context, projectID, sceneID string) (*story.ProseVersion, error) {
	var version story.ProseVersion
	err := m.db.WithContext(ctx).
		Where("project_id = ? AND scene_id = ? AND is_current = ?", projectID, sceneID, true).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: current version of scene %q", story.ErrNotFound, sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("prose: current version: %w", err)
	}
	return &version, nil
}

// ListVersions returns a scene's versions newest first.
func (m *Manager) ListVersions(ctx context.Context, projectID, sceneID string) ([]story.ProseVersion, error) {
	var versions []story.ProseVersion
	err := m.db.WithContext(ctx).
		Where("project_id = ? AND scene_id = ?", projectID, sceneID).
		Order("created_at DESC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("prose: list versions: %w", err)
	}
	return versions, nil
}

// nextVersion bumps the minor component of the highest existing version and
// resets patch. The first version is 1.0.0. Unparseable stored versions are
// skipped rather than fatal.
func nextVersion(existing []story.ProseVersion) string {
	bestMajor, bestMinor, bestPatch := 0, 0, 0
	found := false
	for _, version := range existing {
		major, minor, patch, err := parseVersion(version.Version)
		if err != nil {
			continue
		}
		if !found || versionLess(bestMajor, bestMinor, bestPatch, major, minor, patch) {
			bestMajor, bestMinor, bestPatch = major, minor, patch
			found = true
		}
	}
	if !found {
		return firstVersion
	}
	return fmt.Sprintf("%d.%d.0", bestMajor, bestMinor+1)
}

func versionLess(aMaj, aMin, aPat, bMaj, bMin, bPat int) bool {
	if aMaj != bMaj {
		return aMaj < bMaj
	}
	if aMin != bMin {
		return aMin < bMin
	}
	return aPat < bPat
}

func parseVersion(value string) (major, minor, patch int, err error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("prose: malformed version %q", value)
	}
	numbers := make([]int, 3)
	for i, part := range parts {
		numbers[i], err = strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("prose: malformed version %q: %w", value, err)
		}
	}
	return numbers[0], numbers[1], numbers[2], nil
}
