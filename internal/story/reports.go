package story

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SummaryStats describe a numeric column over a result set. An empty set is
// well-defined: all fields zero.
type SummaryStats struct {
	Count int64
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// ProjectReport aggregates a project's store contents for reporting.
type ProjectReport struct {
	ProjectID      string
	Status         ProjectStatus
	ScenesByKind   map[SceneKind]int64
	ScenesByPOV    map[string]int64
	WordCounts     SummaryStats
	LinkScores     SummaryStats
	LinksByType    map[LinkType]int64
	LinkCount      int64
	ValidLinkRatio float64
}

// HistogramBucket is one day of creation or update activity.
type HistogramBucket struct {
	Day   string
	Count int64
}

// BuildProjectReport computes the aggregate report for one project.
func (r *Repository) BuildProjectReport(ctx context.Context, projectID string) (*ProjectReport, error) {
	project, err := r.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	report := &ProjectReport{
		ProjectID:    projectID,
		Status:       project.Status,
		ScenesByKind: map[SceneKind]int64{},
		ScenesByPOV:  map[string]int64{},
		LinksByType:  map[LinkType]int64{},
	}

	type kindRow struct {
		Kind  SceneKind
		Count int64
	}
	var kindRows []kindRow
	err = r.db.WithContext(ctx).Model(&SceneCard{}).
		Select("kind, COUNT(*) AS count").
		Where("project_id = ?", projectID).
		Group("kind").
		Scan(&kindRows).Error
	if err != nil {
		return nil, fmt.Errorf("story: report scenes by kind: %w", err)
	}
	for _, row := range kindRows {
		report.ScenesByKind[row.Kind] = row.Count
	}

	type povRow struct {
		POV   string `gorm:"column:pov"`
		Count int64
	}
	var povRows []povRow
	err = r.db.WithContext(ctx).Model(&SceneCard{}).
		Select("pov, COUNT(*) AS count").
		Where("project_id = ?", projectID).
		Group("pov").
		Scan(&povRows).Error
	if err != nil {
		return nil, fmt.Errorf("story: report scenes by pov: %w", err)
	}
	for _, row := range povRows {
		report.ScenesByPOV[row.POV] = row.Count
	}

	report.WordCounts, err = r.summarize(ctx, &SceneCard{}, "word_count", "project_id = ?", projectID)
	if err != nil {
		return nil, err
	}
	report.LinkScores, err = r.summarize(ctx, &ChainLink{}, "score", "project_id = ?", projectID)
	if err != nil {
		return nil, err
	}

	type typeRow struct {
		LinkType LinkType
		Count    int64
	}
	var typeRows []typeRow
	err = r.db.WithContext(ctx).Model(&ChainLink{}).
		Select("link_type, COUNT(*) AS count").
		Where("project_id = ?", projectID).
		Group("link_type").
		Scan(&typeRows).Error
	if err != nil {
		return nil, fmt.Errorf("story: report links by type: %w", err)
	}
	var validCount int64
	for _, row := range typeRows {
		report.LinksByType[row.LinkType] = row.Count
		report.LinkCount += row.Count
	}
	if report.LinkCount > 0 {
		err = r.db.WithContext(ctx).Model(&ChainLink{}).
			Where("project_id = ? AND valid = ?", projectID, true).
			Count(&validCount).Error
		if err != nil {
			return nil, fmt.Errorf("story: report valid links: %w", err)
		}
		report.ValidLinkRatio = float64(validCount) / float64(report.LinkCount)
	}
	return report, nil
}

// summarize computes sum/avg/min/max over one numeric column. SQL
// aggregates return NULL on an empty set; nulls collapse to zero.
func (r *Repository) summarize(ctx context.Context, model any, column, cond string, args ...any) (SummaryStats, error) {
	var row struct {
		Count int64
		Sum   sql.NullFloat64
		Avg   sql.NullFloat64
		Min   sql.NullFloat64
		Max   sql.NullFloat64
	}
	err := r.db.WithContext(ctx).Model(model).
		Select(fmt.Sprintf(
			"COUNT(*) AS count, SUM(%[1]s) AS sum, AVG(%[1]s) AS avg, MIN(%[1]s) AS min, MAX(%[1]s) AS max",
			column)).
		Where(cond, args...).
		Scan(&row).Error
	if err != nil {
		return SummaryStats{}, fmt.Errorf("story: summarize %s: %w", column, err)
	}
	return SummaryStats{
		Count: row.Count,
		Sum:   row.Sum.Float64,
		Avg:   row.Avg.Float64,
		Min:   row.Min.Float64,
		Max:   row.Max.Float64,
	}, nil
}

// ActivityHistogram buckets scene creation or update activity by day.
// Column must be "created_at" or "updated_at".
func (r *Repository) ActivityHistogram(ctx context.Context, projectID, column string, from, to time.Time) ([]HistogramBucket, error) {
	if column != "created_at" && column != "updated_at" {
		return nil, fmt.Errorf("story: histogram column must be created_at or updated_at, got %q", column)
	}
	var buckets []HistogramBucket
	err := r.db.WithContext(ctx).Model(&SceneCard{}).
		Select(fmt.Sprintf("date(%[1]s) AS day, COUNT(*) AS count", column)).
		Where(fmt.Sprintf("project_id = ? AND %[1]s >= ? AND %[1]s < ?", column), projectID, from, to).
		Group("day").
		Order("day").
		Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("story: activity histogram: %w", err)
	}
	return buckets, nil
}
