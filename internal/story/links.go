package story

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// LinkFilter narrows ListChainLinks.
type LinkFilter struct {
	Types         []LinkType
	SourceSceneID string
	TargetSceneID string
	Valid         *bool
	OrderBy       string
	Limit         int
	Offset        int
}

// CreateChainLink validates and inserts a chain link. Source kind and POV
// snapshots are taken from the live source scene at creation time; the
// target snapshot is filled when a target is set and exists.
func (r *Repository) CreateChainLink(ctx context.Context, link *ChainLink) error {
	if link.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("story: create chain link: %w", err)
		}
		link.ID = id
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := sceneInTx(tx, link.ProjectID, link.SourceSceneID)
		if err != nil {
			return err
		}
		link.SourceKind = source.Kind
		link.SourcePOV = source.POV
		if link.TargetSceneID != "" {
			target, err := sceneInTx(tx, link.ProjectID, link.TargetSceneID)
			if err != nil {
				return err
			}
			link.TargetKind = target.Kind
			link.TargetPOV = target.POV
		}
		if err := ValidateChainLink(link); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&ChainLink{}).
			Where("project_id = ? AND id = ?", link.ProjectID, link.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("story: create chain link: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: chain link %q already exists in project %q",
				ErrConstraintViolation, link.ID, link.ProjectID)
		}
		if err := tx.Create(link).Error; err != nil {
			return fmt.Errorf("story: create chain link: %w", err)
		}
		return nil
	})
}

// GetChainLink loads one chain link scoped to its project.
func (r *Repository) GetChainLink(ctx context.Context, projectID, linkID string) (*ChainLink, error) {
	var link ChainLink
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, linkID).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chain link %q in project %q", ErrNotFound, linkID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("story: get chain link: %w", err)
	}
	return &link, nil
}

// ListChainLinks returns a project's chain links matching the filter.
func (r *Repository) ListChainLinks(ctx context.Context, projectID string, filter LinkFilter) ([]ChainLink, error) {
	query := r.db.WithContext(ctx).Model(&ChainLink{}).Where("project_id = ?", projectID)
	if len(filter.Types) > 0 {
		query = query.Where("link_type IN ?", filter.Types)
	}
	if filter.SourceSceneID != "" {
		query = query.Where("source_scene_id = ?", filter.SourceSceneID)
	}
	if filter.TargetSceneID != "" {
		query = query.Where("target_scene_id = ?", filter.TargetSceneID)
	}
	if filter.Valid != nil {
		query = query.Where("valid = ?", *filter.Valid)
	}
	query = applyPage(query, filter.OrderBy, "created_at", filter.Limit, filter.Offset)
	var links []ChainLink
	if err := query.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("story: list chain links: %w", err)
	}
	return links, nil
}

// UpdateChainLink replaces a chain link's mutable fields. The denormalized
// source/target snapshots are preserved as taken at creation time; callers
// cannot overwrite them here.
func (r *Repository) UpdateChainLink(ctx context.Context, link *ChainLink) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ChainLink
		err := tx.Where("project_id = ? AND id = ?", link.ProjectID, link.ID).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: chain link %q in project %q", ErrNotFound, link.ID, link.ProjectID)
		}
		if err != nil {
			return fmt.Errorf("story: update chain link: %w", err)
		}
		link.SourceKind = existing.SourceKind
		link.SourcePOV = existing.SourcePOV
		link.TargetKind = existing.TargetKind
		link.TargetPOV = existing.TargetPOV
		if err := ValidateChainLink(link); err != nil {
			return err
		}
		if err := tx.Model(&ChainLink{}).
			Where("project_id = ? AND id = ?", link.ProjectID, link.ID).
			Updates(map[string]any{
				"link_type":         link.LinkType,
				"transition_style":  link.TransitionStyle,
				"source_scene_id":   link.SourceSceneID,
				"target_scene_id":   link.TargetSceneID,
				"trigger":           link.Trigger,
				"target_seed":       link.TargetSeed,
				"bridging_text":     link.BridgingText,
				"valid":             link.Valid,
				"validation_errors": link.ValidationErrs,
				"score":             link.Score,
				"story_context":     link.StoryContext,
				"state_changes":     link.StateChanges,
			}).Error; err != nil {
			return fmt.Errorf("story: update chain link: %w", err)
		}
		return nil
	})
}

// DeleteChainLink removes one chain link.
func (r *Repository) DeleteChainLink(ctx context.Context, projectID, linkID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &ChainLink{}, "project_id = ? AND id = ?",
			[]any{projectID, linkID}, "chain link", linkID); err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND id = ?", projectID, linkID).
			Delete(&ChainLink{}).Error; err != nil {
			return fmt.Errorf("story: delete chain link %q: %w", linkID, err)
		}
		return nil
	})
}

// LinkIssue describes one stale or dangling reference found by
// CheckConsistency.
type LinkIssue struct {
	LinkID  string
	SceneID string
	Role    string // "source" or "target"
	Problem string
}

// CheckConsistency reports chain links whose scene references are dangling
// or whose denormalized snapshots no longer match the live scene. Nothing
// is repaired; the snapshots are a deliberate staleness-tolerant cache.
func (r *Repository) CheckConsistency(ctx context.Context, projectID string) ([]LinkIssue, error) {
	links, err := r.ListChainLinks(ctx, projectID, LinkFilter{})
	if err != nil {
		return nil, err
	}
	scenes, err := r.ListSceneCards(ctx, projectID, SceneFilter{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*SceneCard, len(scenes))
	for i := range scenes {
		byID[scenes[i].ID] = &scenes[i]
	}

	var issues []LinkIssue
	for _, link := range links {
		issues = append(issues, checkEndpoint(link.ID, "source", link.SourceSceneID,
			link.SourceKind, link.SourcePOV, byID)...)
		if link.TargetSceneID != "" {
			issues = append(issues, checkEndpoint(link.ID, "target", link.TargetSceneID,
				link.TargetKind, link.TargetPOV, byID)...)
		}
	}
	return issues, nil
}

func checkEndpoint(linkID, role, sceneID string, kind SceneKind, pov string, scenes map[string]*SceneCard) []LinkIssue {
	scene, ok := scenes[sceneID]
	if !ok {
		return []LinkIssue{{LinkID: linkID, SceneID: sceneID, Role: role, Problem: "scene deleted"}}
	}
	var issues []LinkIssue
	if scene.Kind != kind {
		issues = append(issues, LinkIssue{LinkID: linkID, SceneID: sceneID, Role: role,
			Problem: fmt.Sprintf("snapshot kind %q, scene now %q", kind, scene.Kind)})
	}
	if scene.POV != pov {
		issues = append(issues, LinkIssue{LinkID: linkID, SceneID: sceneID, Role: role,
			Problem: fmt.Sprintf("snapshot pov %q, scene now %q", pov, scene.POV)})
	}
	return issues
}

func sceneInTx(tx *gorm.DB, projectID, sceneID string) (*SceneCard, error) {
	var card SceneCard
	err := tx.Where("project_id = ? AND id = ?", projectID, sceneID).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: scene card %q in project %q", ErrNotFound, sceneID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("story: load scene card: %w", err)
	}
	return &card, nil
}
