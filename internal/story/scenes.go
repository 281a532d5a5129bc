package story

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SceneFilter narrows ListSceneCards. Search matches as a substring across
// SearchFields, defaulting to crucible, place and chain-link note.
type SceneFilter struct {
	Kinds        []SceneKind
	POVs         []string
	Search       string
	SearchFields []string
	OrderBy      string
	Limit        int
	Offset       int
}

var defaultSceneSearchFields = []string{"crucible", "place", "chain_link_note"}

// CreateSceneCard validates and inserts a scene card. The owning project
// must exist; a duplicate (project, id) pair is a constraint violation.
func (r *Repository) CreateSceneCard(ctx context.Context, card *SceneCard) error {
	if err := ValidateSceneCard(card); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{card.ProjectID}, "project", card.ProjectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&SceneCard{}).
			Where("project_id = ? AND id = ?", card.ProjectID, card.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("story: create scene card: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: scene card %q already exists in project %q",
				ErrConstraintViolation, card.ID, card.ProjectID)
		}
		if err := tx.Create(card).Error; err != nil {
			return fmt.Errorf("story: create scene card: %w", err)
		}
		return nil
	})
}

// GetSceneCard loads one scene card scoped to its project.
func (r *Repository) GetSceneCard(ctx context.Context, projectID, sceneID string) (*SceneCard, error) {
	var card SceneCard
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, sceneID).
		Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: scene card %q in project %q", ErrNotFound, sceneID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("story: get scene card: %w", err)
	}
	return &card, nil
}

// ListSceneCards returns a project's scene cards matching the filter.
func (r *Repository) ListSceneCards(ctx context.Context, projectID string, filter SceneFilter) ([]SceneCard, error) {
	query := r.db.WithContext(ctx).Model(&SceneCard{}).Where("project_id = ?", projectID)
	if len(filter.Kinds) > 0 {
		query = query.Where("kind IN ?", filter.Kinds)
	}
	if len(filter.POVs) > 0 {
		query = query.Where("pov IN ?", filter.POVs)
	}
	if filter.Search != "" {
		fields := filter.SearchFields
		if len(fields) == 0 {
			fields = defaultSceneSearchFields
		}
		query = query.Where(substringAcross(r.db, fields, filter.Search))
	}
	query = applyPage(query, filter.OrderBy, "created_at", filter.Limit, filter.Offset)
	var cards []SceneCard
	if err := query.Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("story: list scene cards: %w", err)
	}
	return cards, nil
}

// UpdateSceneCard replaces a scene card wholesale (full-document replace).
// Prose mutations go through the version manager instead.
func (r *Repository) UpdateSceneCard(ctx context.Context, card *SceneCard) error {
	if err := ValidateSceneCard(card); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &SceneCard{}, "project_id = ? AND id = ?",
			[]any{card.ProjectID, card.ID}, "scene card", card.ID); err != nil {
			return err
		}
		if err := tx.Model(&SceneCard{}).
			Where("project_id = ? AND id = ?", card.ProjectID, card.ID).
			Updates(map[string]any{
				"kind":            card.Kind,
				"pov":             card.POV,
				"viewpoint":       card.Viewpoint,
				"tense":           card.Tense,
				"crucible":        card.Crucible,
				"place":           card.Place,
				"time":            card.Time,
				"exposition_tags": card.ExpositionTags,
				"chain_link_note": card.ChainLinkNote,
				"plan":            card.Plan,
			}).Error; err != nil {
			return fmt.Errorf("story: update scene card: %w", err)
		}
		return nil
	})
}

// DeleteSceneCard removes a scene card and its prose versions. Chain links
// referencing the scene are left in place with stale denormalized
// snapshots; CheckConsistency surfaces them.
func (r *Repository) DeleteSceneCard(ctx context.Context, projectID, sceneID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &SceneCard{}, "project_id = ? AND id = ?",
			[]any{projectID, sceneID}, "scene card", sceneID); err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND scene_id = ?", projectID, sceneID).
			Delete(&ProseVersion{}).Error; err != nil {
			return fmt.Errorf("story: delete prose versions of %q: %w", sceneID, err)
		}
		if err := tx.Where("project_id = ? AND id = ?", projectID, sceneID).
			Delete(&SceneCard{}).Error; err != nil {
			return fmt.Errorf("story: delete scene card %q: %w", sceneID, err)
		}
		return nil
	})
	if err == nil {
		r.logger.Info("scene card deleted",
			zap.String("project_id", projectID), zap.String("scene_id", sceneID))
	}
	return err
}

// substringAcross builds an OR'd substring condition over several columns.
func substringAcross(db *gorm.DB, columns []string, term string) *gorm.DB {
	pattern := "%" + escapeLike(term) + "%"
	cond := db.Session(&gorm.Session{NewDB: true})
	for i, column := range columns {
		expr := column + ` LIKE ? ESCAPE '\'`
		if i == 0 {
			cond = cond.Where(expr, pattern)
		} else {
			cond = cond.Or(expr, pattern)
		}
	}
	return cond
}
