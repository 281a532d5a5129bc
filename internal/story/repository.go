package story

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// Config carries the dependencies of a Repository. The database handle is
// required; clock, id provider and logger have sensible defaults.
type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Repository is the single write path into the entity store. All multi-row
// mutations run inside one transaction; a failed write leaves no partial
// entity state.
type Repository struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger
}

// NewRepository validates the configuration and constructs a Repository.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("story: new repository: %w", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Repository{db: cfg.Database, clock: clock, ids: ids, logger: logger}, nil
}

// DB exposes the underlying handle for read-only composition (query
// builders, reports). Writes must go through repository methods.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// ProjectFilter narrows ListProjects.
type ProjectFilter struct {
	Statuses      []ProjectStatus
	TitleContains string
	OrderBy       string
	Limit         int
	Offset        int
}

// CreateProject validates and inserts a project. An empty ID is filled from
// the id provider; a duplicate ID is a constraint violation.
func (r *Repository) CreateProject(ctx context.Context, project *Project) error {
	if strings.TrimSpace(project.Title) == "" {
		return fmt.Errorf("%w: project title is required", ErrConstraintViolation)
	}
	if !knownProjectStatus(project.Status) {
		return fmt.Errorf("%w: unknown project status %q", ErrConstraintViolation, project.Status)
	}
	if project.ID == "" {
		id, err := r.ids.NewID()
		if err != nil {
			return fmt.Errorf("story: create project: %w", err)
		}
		project.ID = id
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Project{}).Where("id = ?", project.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("story: create project: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: project %q already exists", ErrConstraintViolation, project.ID)
		}
		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("story: create project: %w", err)
		}
		return nil
	})
}

// GetProject loads one project by identifier.
func (r *Repository) GetProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: project %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("story: get project: %w", err)
	}
	return &project, nil
}

// ListProjects returns projects matching the filter.
func (r *Repository) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	query := r.db.WithContext(ctx).Model(&Project{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.TitleContains != "" {
		query = whereContains(query, "title", filter.TitleContains)
	}
	query = applyPage(query, filter.OrderBy, "created_at", filter.Limit, filter.Offset)
	var projects []Project
	if err := query.Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("story: list projects: %w", err)
	}
	return projects, nil
}

// UpdateProject replaces a project's mutable fields. The project must exist.
func (r *Repository) UpdateProject(ctx context.Context, project *Project) error {
	if strings.TrimSpace(project.Title) == "" {
		return fmt.Errorf("%w: project title is required", ErrConstraintViolation)
	}
	if !knownProjectStatus(project.Status) {
		return fmt.Errorf("%w: unknown project status %q", ErrConstraintViolation, project.Status)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{project.ID}, "project", project.ID); err != nil {
			return err
		}
		if err := tx.Model(&Project{}).Where("id = ?", project.ID).Updates(map[string]any{
			"title":             project.Title,
			"target_word_count": project.TargetWordCount,
			"status":            project.Status,
		}).Error; err != nil {
			return fmt.Errorf("story: update project: %w", err)
		}
		return nil
	})
}

// DeleteProject removes a project and cascades to every owned entity in a
// single transaction.
func (r *Repository) DeleteProject(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Project{}, "id = ?", []any{id}, "project", id); err != nil {
			return err
		}
		for _, model := range []any{
			&ValidationLog{}, &Sequence{}, &Character{}, &ChainLink{}, &ProseVersion{}, &SceneCard{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("story: cascade delete project %q: %w", id, err)
			}
		}
		if err := tx.Where("id = ?", id).Delete(&Project{}).Error; err != nil {
			return fmt.Errorf("story: delete project %q: %w", id, err)
		}
		return nil
	})
	if err == nil {
		r.logger.Info("project deleted", zap.String("project_id", id))
	}
	return err
}

func knownProjectStatus(status ProjectStatus) bool {
	switch status {
	case ProjectStatusDraft, ProjectStatusInProgress, ProjectStatusCompleted:
		return true
	}
	return false
}

// requireRow fails with ErrNotFound when no row matches the condition.
func requireRow(tx *gorm.DB, model any, cond string, args []any, kind, id string) error {
	var count int64
	if err := tx.Model(model).Where(cond, args...).Count(&count).Error; err != nil {
		return fmt.Errorf("story: lookup %s %q: %w", kind, id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in a substring-search term.
func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(term)
}

// whereContains adds a substring condition on column.
func whereContains(query *gorm.DB, column, term string) *gorm.DB {
	return query.Where(column+` LIKE ? ESCAPE '\'`, "%"+escapeLike(term)+"%")
}

func applyPage(query *gorm.DB, orderBy, defaultOrder string, limit, offset int) *gorm.DB {
	if orderBy == "" {
		orderBy = defaultOrder
	}
	query = query.Order(orderBy)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
