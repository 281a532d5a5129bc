package archive

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prosevault/prosevault/internal/story"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	prefix string
	index  int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.index++
	return fmt.Sprintf("%s-%d", g.prefix, g.index), nil
}

type fixture struct {
	repository *story.Repository
	db         *gorm.DB
	dir        string
	clock      *testClock
}

// testClock advances one second per backup so retention ordering is
// deterministic.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:prosevault_archive_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := []any{
		&story.Project{}, &story.SceneCard{}, &story.ProseVersion{}, &story.ChainLink{},
		&story.Character{}, &story.Sequence{}, &story.ValidationLog{}, &BackupRecord{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repository, err := story.NewRepository(story.Config{
		Database:   db,
		IDProvider: &staticIDGenerator{prefix: "entity"},
	})
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	return &fixture{
		repository: repository,
		db:         db,
		dir:        t.TempDir(),
		clock:      &testClock{now: time.Unix(1700000000, 0).UTC()},
	}
}

func (f *fixture) newManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = f.dir
	}
	manager, err := NewManager(ManagerConfig{
		Repository: f.repository,
		Clock:      f.clock.Now,
		IDProvider: &staticIDGenerator{prefix: "backup"},
		Options:    opts,
	})
	if err != nil {
		t.Fatalf("failed to construct manager: %v", err)
	}
	return manager
}

func (f *fixture) newRecovery(t *testing.T) *Recovery {
	t.Helper()
	recovery, err := NewRecovery(RecoveryConfig{
		Repository: f.repository,
		IDProvider: &staticIDGenerator{prefix: "restored"},
	})
	if err != nil {
		t.Fatalf("failed to construct recovery: %v", err)
	}
	return recovery
}

func (f *fixture) seedProject(t *testing.T, projectID string) {
	t.Helper()
	ctx := context.Background()

	err := f.repository.CreateProject(ctx, &story.Project{
		ID:     projectID,
		Title:  "Seeded Novel",
		Status: story.ProjectStatusInProgress,
	})
	if err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}

	goal := &story.SceneCard{
		ProjectID: projectID,
		ID:        "scene-goal",
		Kind:      story.SceneKindGoal,
		POV:       "Maya",
		Viewpoint: story.ViewpointThirdLimited,
		Tense:     story.TensePast,
		Crucible:  "Maya must cross the flooded bridge.",
		Place:     "the bridge",
		Plan: story.PlanColumn{Plan: story.GoalPlan{
			Goal: "cross", Conflict: "flood", Outcome: "setback",
		}},
	}
	if err := f.repository.CreateSceneCard(ctx, goal); err != nil {
		t.Fatalf("failed to seed scene: %v", err)
	}
	reaction := &story.SceneCard{
		ProjectID: projectID,
		ID:        "scene-reaction",
		Kind:      story.SceneKindReaction,
		POV:       "Maya",
		Viewpoint: story.ViewpointThirdLimited,
		Tense:     story.TensePast,
		Crucible:  "Maya reels on the riverbank.",
		Plan: story.PlanColumn{Plan: story.ReactionPlan{
			Reaction: "despair", Dilemma: "swim or wait", Decision: "wait",
		}},
	}
	if err := f.repository.CreateSceneCard(ctx, reaction); err != nil {
		t.Fatalf("failed to seed scene: %v", err)
	}

	link := &story.ChainLink{
		ProjectID:     projectID,
		ID:            "link-1",
		LinkType:      story.LinkSetbackReaction,
		SourceSceneID: "scene-goal",
		TargetSceneID: "scene-reaction",
		Valid:         true,
		Score:         0.9,
	}
	if err := f.repository.CreateChainLink(ctx, link); err != nil {
		t.Fatalf("failed to seed link: %v", err)
	}

	character := &story.Character{
		ProjectID: projectID,
		ID:        "char-maya",
		Name:      "Maya",
		Role:      "protagonist",
	}
	if err := f.repository.CreateCharacter(ctx, character); err != nil {
		t.Fatalf("failed to seed character: %v", err)
	}
	sequence := &story.Sequence{
		ProjectID:  projectID,
		ID:         "seq-1",
		Title:      "Act One",
		SceneOrder: story.StringList{"scene-goal", "scene-reaction"},
	}
	if err := f.repository.CreateSequence(ctx, sequence); err != nil {
		t.Fatalf("failed to seed sequence: %v", err)
	}

	version := &story.ProseVersion{
		ID: "version-1", ProjectID: projectID, SceneID: "scene-goal",
		Body: "Maya ran toward the bridge.", ContentHash: "hash-1",
		Version: "1.0.0", IsCurrent: true, WordCount: 5, ReadingMinutes: 1,
	}
	if err := f.db.Create(version).Error; err != nil {
		t.Fatalf("failed to seed version: %v", err)
	}
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
