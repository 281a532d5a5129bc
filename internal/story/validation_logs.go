package story

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// CreateValidationLog records one collaborator validation run. The detail
// payload is stored opaquely.
func (r *Repository) CreateValidationLog(ctx context.Context, log *ValidationLog) error {
	if log.Validator == "" {
		return fmt.Errorf("%w: validation log validator is required", ErrConstraintViolation)
	}
	if log.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("story: create validation log: %w", err)
		}
		log.ID = id
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{log.ProjectID}, "project", log.ProjectID); err != nil {
			return err
		}
		if err := tx.Create(log).Error; err != nil {
			return fmt.Errorf("story: create validation log: %w", err)
		}
		return nil
	})
}

// DeleteValidationLog removes one validation log entry.
func (r *Repository) DeleteValidationLog(ctx context.Context, logID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &ValidationLog{}, "id = ?", []any{logID}, "validation log", logID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", logID).Delete(&ValidationLog{}).Error; err != nil {
			return fmt.Errorf("story: delete validation log %q: %w", logID, err)
		}
		return nil
	})
}

// ListValidationLogs returns a project's validation logs, optionally scoped
// to one scene, newest first.
func (r *Repository) ListValidationLogs(ctx context.Context, projectID, sceneID string) ([]ValidationLog, error) {
	query := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if sceneID != "" {
		query = query.Where("scene_id = ?", sceneID)
	}
	var logs []ValidationLog
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("story: list validation logs: %w", err)
	}
	return logs, nil
}
