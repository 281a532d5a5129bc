package story

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func newTestRepository(t *testing.T, ids []string) (*Repository, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:prosevault_story_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	models := []any{
		&Project{}, &SceneCard{}, &ProseVersion{}, &ChainLink{},
		&Character{}, &Sequence{}, &ValidationLog{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	generator := &staticIDGenerator{ids: ids}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	repository, err := NewRepository(Config{
		Database:   db,
		Clock:      clock,
		IDProvider: generator,
	})
	if err != nil {
		t.Fatalf("failed to construct repository: %v", err)
	}
	return repository, db
}

func mustCreateProject(t *testing.T, repository *Repository, id, title string) {
	t.Helper()
	err := repository.CreateProject(context.Background(), &Project{
		ID:     id,
		Title:  title,
		Status: ProjectStatusDraft,
	})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
}

func goalScene(projectID, sceneID, pov string) *SceneCard {
	return &SceneCard{
		ProjectID: projectID,
		ID:        sceneID,
		Kind:      SceneKindGoal,
		POV:       pov,
		Viewpoint: ViewpointThirdLimited,
		Tense:     TensePast,
		Crucible:  "Maya must cross the flooded bridge before nightfall.",
		Place:     "the bridge",
		Plan: PlanColumn{Plan: GoalPlan{
			Goal:     "cross the bridge",
			Conflict: "flood waters rising",
			Outcome:  "setback",
		}},
	}
}

func reactionScene(projectID, sceneID, pov string) *SceneCard {
	return &SceneCard{
		ProjectID: projectID,
		ID:        sceneID,
		Kind:      SceneKindReaction,
		POV:       pov,
		Viewpoint: ViewpointThirdLimited,
		Tense:     TensePast,
		Crucible:  "Maya reels from the loss of the bridge.",
		Place:     "the riverbank",
		Plan: PlanColumn{Plan: ReactionPlan{
			Reaction: "despair",
			Dilemma:  "swim or wait",
			Decision: "wait for morning",
		}},
	}
}

func mustCreateScene(t *testing.T, repository *Repository, card *SceneCard) {
	t.Helper()
	if err := repository.CreateSceneCard(context.Background(), card); err != nil {
		t.Fatalf("failed to create scene card: %v", err)
	}
}
