package story

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SceneQuery is a composable filter builder over a project's scene cards.
// Builder methods return the receiver for chaining; Execute, Count and
// Exists are terminal.
type SceneQuery struct {
	db        *gorm.DB
	projectID string
	query     *gorm.DB
}

// NewSceneQuery starts a query over one project's scene cards.
func NewSceneQuery(db *gorm.DB, projectID string) *SceneQuery {
	return &SceneQuery{
		db:        db,
		projectID: projectID,
		query:     db.Model(&SceneCard{}).Where("scene_cards.project_id = ?", projectID),
	}
}

// Kind keeps scenes whose kind is in the given set.
func (q *SceneQuery) Kind(kinds ...SceneKind) *SceneQuery {
	q.query = q.query.Where("scene_cards.kind IN ?", kinds)
	return q
}

// POV keeps scenes whose point-of-view label is in the given set.
func (q *SceneQuery) POV(povs ...string) *SceneQuery {
	q.query = q.query.Where("scene_cards.pov IN ?", povs)
	return q
}

// Viewpoint keeps scenes with the given viewpoint.
func (q *SceneQuery) Viewpoint(viewpoint Viewpoint) *SceneQuery {
	q.query = q.query.Where("scene_cards.viewpoint = ?", viewpoint)
	return q
}

// WordCountBetween keeps scenes whose cached word count lies in [lo, hi].
func (q *SceneQuery) WordCountBetween(lo, hi int) *SceneQuery {
	q.query = q.query.Where("scene_cards.word_count BETWEEN ? AND ?", lo, hi)
	return q
}

// CreatedBetween keeps scenes created in [from, to).
func (q *SceneQuery) CreatedBetween(from, to time.Time) *SceneQuery {
	q.query = q.query.Where("scene_cards.created_at >= ? AND scene_cards.created_at < ?", from, to)
	return q
}

// UpdatedSince keeps scenes updated at or after the given instant.
func (q *SceneQuery) UpdatedSince(since time.Time) *SceneQuery {
	q.query = q.query.Where("scene_cards.updated_at >= ?", since)
	return q
}

// Search keeps scenes where term appears as a substring in any of the given
// fields (defaulting to crucible, place and chain-link note).
func (q *SceneQuery) Search(term string, fields ...string) *SceneQuery {
	if len(fields) == 0 {
		fields = defaultSceneSearchFields
	}
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = "scene_cards." + field
	}
	q.query = q.query.Where(substringAcross(q.db, columns, term))
	return q
}

// WhereProseContains keeps scenes whose current prose version contains term.
func (q *SceneQuery) WhereProseContains(term string) *SceneQuery {
	q.query = q.query.
		Joins("JOIN prose_versions ON prose_versions.project_id = scene_cards.project_id"+
			" AND prose_versions.scene_id = scene_cards.id AND prose_versions.is_current = ?", true).
		Where(`prose_versions.body LIKE ? ESCAPE '\'`, "%"+escapeLike(term)+"%")
	return q
}

// OrderBy sets the result ordering.
func (q *SceneQuery) OrderBy(expr string) *SceneQuery {
	q.query = q.query.Order(expr)
	return q
}

// Limit caps the result size.
func (q *SceneQuery) Limit(n int) *SceneQuery {
	q.query = q.query.Limit(n)
	return q
}

// Offset skips the first n results.
func (q *SceneQuery) Offset(n int) *SceneQuery {
	q.query = q.query.Offset(n)
	return q
}

// Count returns the number of matching scenes.
func (q *SceneQuery) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := q.query.WithContext(ctx).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("story: scene query count: %w", err)
	}
	return count, nil
}

// Exists reports whether any scene matches.
func (q *SceneQuery) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Execute returns the matching scenes.
func (q *SceneQuery) Execute(ctx context.Context) ([]SceneCard, error) {
	var cards []SceneCard
	if err := q.query.WithContext(ctx).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("story: scene query execute: %w", err)
	}
	return cards, nil
}

// LinkQuery is the chain-link counterpart of SceneQuery.
type LinkQuery struct {
	db    *gorm.DB
	query *gorm.DB
}

// NewLinkQuery starts a query over one project's chain links.
func NewLinkQuery(db *gorm.DB, projectID string) *LinkQuery {
	return &LinkQuery{
		db:    db,
		query: db.Model(&ChainLink{}).Where("chain_links.project_id = ?", projectID),
	}
}

// Type keeps links whose edge type is in the given set.
func (q *LinkQuery) Type(types ...LinkType) *LinkQuery {
	q.query = q.query.Where("chain_links.link_type IN ?", types)
	return q
}

// Valid keeps links with the given validity flag.
func (q *LinkQuery) Valid(valid bool) *LinkQuery {
	q.query = q.query.Where("chain_links.valid = ?", valid)
	return q
}

// ScoreBetween keeps links whose validation score lies in [lo, hi].
func (q *LinkQuery) ScoreBetween(lo, hi float64) *LinkQuery {
	q.query = q.query.Where("chain_links.score BETWEEN ? AND ?", lo, hi)
	return q
}

// FromScene keeps links originating at the given scene.
func (q *LinkQuery) FromScene(sceneID string) *LinkQuery {
	q.query = q.query.Where("chain_links.source_scene_id = ?", sceneID)
	return q
}

// Search keeps links where term appears in trigger, target seed or
// bridging text.
func (q *LinkQuery) Search(term string) *LinkQuery {
	columns := []string{"chain_links.trigger", "chain_links.target_seed", "chain_links.bridging_text"}
	q.query = q.query.Where(substringAcross(q.db, columns, term))
	return q
}

// UpdatedSince keeps links updated at or after the given instant.
func (q *LinkQuery) UpdatedSince(since time.Time) *LinkQuery {
	q.query = q.query.Where("chain_links.updated_at >= ?", since)
	return q
}

// OrderBy sets the result ordering.
func (q *LinkQuery) OrderBy(expr string) *LinkQuery {
	q.query = q.query.Order(expr)
	return q
}

// Limit caps the result size.
func (q *LinkQuery) Limit(n int) *LinkQuery {
	q.query = q.query.Limit(n)
	return q
}

// Offset skips the first n results.
func (q *LinkQuery) Offset(n int) *LinkQuery {
	q.query = q.query.Offset(n)
	return q
}

// Count returns the number of matching links.
func (q *LinkQuery) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := q.query.WithContext(ctx).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("story: link query count: %w", err)
	}
	return count, nil
}

// Exists reports whether any link matches.
func (q *LinkQuery) Exists(ctx context.Context) (bool, error) {
	count, err := q.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Execute returns the matching links.
func (q *LinkQuery) Execute(ctx context.Context) ([]ChainLink, error) {
	var links []ChainLink
	if err := q.query.WithContext(ctx).Find(&links).Error; err != nil {
		return nil, fmt.Errorf("story: link query execute: %w", err)
	}
	return links, nil
}
