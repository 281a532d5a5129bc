package story

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CreateCharacter validates and inserts a character.
func (r *Repository) CreateCharacter(ctx context.Context, character *Character) error {
	if strings.TrimSpace(character.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrConstraintViolation)
	}
	if character.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("story: create character: %w", err)
		}
		character.ID = id
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{character.ProjectID}, "project", character.ProjectID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Character{}).
			Where("project_id = ? AND id = ?", character.ProjectID, character.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("story: create character: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: character %q already exists in project %q",
				ErrConstraintViolation, character.ID, character.ProjectID)
		}
		if err := tx.Create(character).Error; err != nil {
			return fmt.Errorf("story: create character: %w", err)
		}
		return nil
	})
}

// GetCharacter loads one character scoped to its project.
func (r *Repository) GetCharacter(ctx context.Context, projectID, characterID string) (*Character, error) {
	var character Character
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, characterID).
		Take(&character).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: character %q in project %q", ErrNotFound, characterID, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("story: get character: %w", err)
	}
	return &character, nil
}

// ListCharacters returns a project's characters ordered by name.
func (r *Repository) ListCharacters(ctx context.Context, projectID string) ([]Character, error) {
	var characters []Character
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("name").
		Find(&characters).Error
	if err != nil {
		return nil, fmt.Errorf("story: list characters: %w", err)
	}
	return characters, nil
}

// UpdateCharacter replaces a character's mutable fields.
func (r *Repository) UpdateCharacter(ctx context.Context, character *Character) error {
	if strings.TrimSpace(character.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrConstraintViolation)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Character{}, "project_id = ? AND id = ?",
			[]any{character.ProjectID, character.ID}, "character", character.ID); err != nil {
			return err
		}
		if err := tx.Model(&Character{}).
			Where("project_id = ? AND id = ?", character.ProjectID, character.ID).
			Updates(map[string]any{
				"name":      character.Name,
				"role":      character.Role,
				"pov_notes": character.POVNotes,
				"traits":    character.Traits,
			}).Error; err != nil {
			return fmt.Errorf("story: update character: %w", err)
		}
		return nil
	})
}

// DeleteCharacter removes one character.
func (r *Repository) DeleteCharacter(ctx context.Context, projectID, characterID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Character{}, "project_id = ? AND id = ?",
			[]any{projectID, characterID}, "character", characterID); err != nil {
			return err
		}
		if err := tx.Where("project_id = ? AND id = ?", projectID, characterID).
			Delete(&Character{}).Error; err != nil {
			return fmt.Errorf("story: delete character %q: %w", characterID, err)
		}
		return nil
	})
}
