package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CreateSequence validates and inserts a sequence. Every member scene must
// exist in the project at creation time.
func (r *Repository) CreateSequence(ctx context.Context, sequence *Sequence) error {
	if strings.TrimSpace(sequence.Title) == "" {
		return fmt.Errorf("%w: sequence title is required", ErrConstraintViolation)
	}
	if len(sequence.SceneOrder) == 0 {
		return fmt.Errorf("%w: sequence %q has no member scenes", ErrConstraintViolation, sequence.ID)
	}
	if sequence.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("story: create sequence: %w", err)
		}
		sequence.ID = id
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{sequence.ProjectID}, "project", sequence.ProjectID); err != nil {
			return err
		}
		for _, sceneID := range sequence.SceneOrder {
			if err := requireRow(tx, &SceneCard{}, "project_id = ? AND id = ?",
				[]any{sequence.ProjectID, sceneID}, "scene card", sceneID); err != nil {
				return err
			}
		}
		var count int64
		if err := tx.Model(&Sequence{}).
			Where("project_id = ? AND id = ?", sequence.ProjectID, sequence.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("story: create sequence: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: sequence %q already exists in project %q",
				ErrConstraintViolation, sequence.ID, sequence.ProjectID)
		}
		if err := tx.Create(sequence).Error; err != nil {
			return fmt.Errorf("story: create sequence: %w", err)
		}
		return nil
	})
}

// GetSequence loads one sequence scoped to its project.
func (r *Repository) GetSequence(ctx context.Context, projectID, sequenceID string) (*Sequence, error) {
	var sequence Sequence
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, sequenceID).
		Take(&sequence).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: sequence %q in project %q", ErrNotFound, sequenceID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("story: get sequence: %w", err)
	}
	return &sequence, nil
}

// ListSequences returns a project's sequences ordered by creation time.
func (r *Repository) ListSequences(ctx context.Context, projectID string) ([]Sequence, error) {
	var sequences []Sequence
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at").
		Find(&sequences).Error
	if err != nil {
		return nil, fmt.Errorf("story: list sequences: %w", err)
	}
	return sequences, nil
}

// UpdateSequence replaces a sequence's title and scene ordering.
func (r *Repository) UpdateSequence(ctx context.Context, sequence *Sequence) error {
	if strings.TrimSpace(sequence.Title) == "" {
		return fmt.Errorf("%w: sequence title is required", ErrConstraintViolation)
	}
	if len(sequence.SceneOrder) == 0 {
		return fmt.Errorf("%w: sequence %q has no member scenes", ErrConstraintViolation, sequence.ID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Sequence{}, "project_id = ? AND id = ?",
			[]any{sequence.ProjectID, sequence.ID}, "sequence", sequence.ID); err != nil {
			return err
		}
		for _, sceneID := range sequence.SceneOrder {
			if err := requireRow(tx, &SceneCard{}, "project_id = ? AND id = ?",
				[]any{sequence.ProjectID, sceneID}, "scene card", sceneID); err != nil {
				return err
			}
		}
		if err := tx.Model(&Sequence{}).
			Where("project_id = ? AND id = ?", sequence.ProjectID, sequence.ID).
			Updates(map[string]any{
				"title":       sequence.Title,
				"scene_order": sequence.SceneOrder,
			}).Error; err != nil {
			return fmt.Errorf("story: update sequence: %w", err)
		}
		return nil
	})
}

// DeleteSequence removes one sequence. Member scenes are untouched.
func (r *Repository) DeleteSequence(ctx context.Context, projectID, sequenceID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Sequence{}, "project_id = ? AND id = ?",
			[]any{projectID, sequenceID}, "sequence", sequenceID); err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND id = ?", projectID, sequenceID).
			Delete(&Sequence{}).Error; err != nil {
			return fmt.Errorf("story: delete sequence %q: %w", sequenceID, err)
		}
		return nil
	})
}

// SequenceMetricsFor recomputes a sequence's derived metrics from the
// current prose versions of its member scenes. Scenes without prose
// contribute zero.
func (r *Repository) SequenceMetricsFor(ctx context.Context, projectID, sequenceID string) (SequenceMetrics, error) {
	sequence, err := r.GetSequence(ctx, projectID, sequenceID)
	if err != nil {
		return SequenceMetrics{}, err
	}
	metrics := SequenceMetrics{SceneCount: len(sequence.SceneOrder)}
	if len(sequence.SceneOrder) == 0 {
		return metrics, nil
	}
	var versions []ProseVersion
	err = r.db.WithContext(ctx).
		Where("project_id = ? AND scene_id IN ? AND is_current = ?",
			projectID, []string(sequence.SceneOrder), true).
		Find(&versions).Error
	if err != nil {
		return SequenceMetrics{}, fmt.Errorf("story: sequence metrics: %w", err)
	}
	for _, version := range versions {
		metrics.TotalWordCount += version.WordCount
		metrics.ReadingMinutes += version.ReadingMinutes
	}
	return metrics, nil
}
