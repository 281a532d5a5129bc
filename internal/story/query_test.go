package story

import (
	"context"
	"testing"
)

func querySeed(t *testing.T) *Repository {
	t.Helper()
	repository, db := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "Novel")

	short := goalScene("project-1", "scene-short", "Maya")
	mustCreateScene(t, repository, short)
	long := reactionScene("project-1", "scene-long", "Jonas")
	mustCreateScene(t, repository, long)

	if err := db.Model(&SceneCard{}).
		Where("project_id = ? AND id = ?", "project-1", "scene-short").
		Update("word_count", 120).Error; err != nil {
		t.Fatalf("failed to seed word count: %v", err)
	}
	if err := db.Model(&SceneCard{}).
		Where("project_id = ? AND id = ?", "project-1", "scene-long").
		Update("word_count", 2400).Error; err != nil {
		t.Fatalf("failed to seed word count: %v", err)
	}

	version := &ProseVersion{
		ID: "version-1", ProjectID: "project-1", SceneID: "scene-long",
		Body: "The river swallowed the bridge whole.", ContentHash: "hash-1",
		Version: "1.0.0", IsCurrent: true,
	}
	if err := db.Create(version).Error; err != nil {
		t.Fatalf("failed to seed version: %v", err)
	}
	return repository
}

func TestSceneQueryFiltersByKind(t *testing.T) {
	repository := querySeed(t)

	cards, err := NewSceneQuery(repository.DB(), "project-1").
		Kind(SceneKindReaction).
		Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "scene-long" {
		t.Fatalf("expected only scene-long, got %#v", cards)
	}
}

func TestSceneQueryWordCountBetween(t *testing.T) {
	repository := querySeed(t)

	count, err := NewSceneQuery(repository.DB(), "project-1").
		WordCountBetween(100, 200).
		Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 scene in range, got %d", count)
	}
}

func TestSceneQueryWhereProseContains(t *testing.T) {
	repository := querySeed(t)

	cards, err := NewSceneQuery(repository.DB(), "project-1").
		WhereProseContains("swallowed the bridge").
		Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 1 || cards[0].ID != "scene-long" {
		t.Fatalf("expected the scene with matching prose, got %#v", cards)
	}
}

func TestSceneQueryExistsAndChaining(t *testing.T) {
	repository := querySeed(t)

	exists, err := NewSceneQuery(repository.DB(), "project-1").
		Kind(SceneKindGoal).
		POV("Maya").
		Exists(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Fatalf("expected a matching scene to exist")
	}

	exists, err = NewSceneQuery(repository.DB(), "project-1").
		Kind(SceneKindGoal).
		POV("Jonas").
		Exists(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Fatalf("expected no goal scene with Jonas pov")
	}
}

func TestLinkQueryScoreAndValidity(t *testing.T) {
	repository := querySeed(t)

	for _, cfg := range []struct {
		id    string
		score float64
		valid bool
	}{
		{"link-low", 0.2, true},
		{"link-high", 0.9, true},
		{"link-invalid", 0.95, false},
	} {
		link := &ChainLink{
			ProjectID:     "project-1",
			ID:            cfg.id,
			LinkType:      LinkBridge,
			SourceSceneID: "scene-short",
			Score:         cfg.score,
			Valid:         cfg.valid,
		}
		if err := repository.CreateChainLink(context.Background(), link); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	links, err := NewLinkQuery(repository.DB(), "project-1").
		Valid(true).
		ScoreBetween(0.5, 1.0).
		Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 1 || links[0].ID != "link-high" {
		t.Fatalf("expected only link-high, got %#v", links)
	}
}

func TestLinkQueryFromSceneWithPaging(t *testing.T) {
	repository := querySeed(t)

	for _, id := range []string{"link-1", "link-2", "link-3"} {
		link := &ChainLink{
			ProjectID:     "project-1",
			ID:            id,
			LinkType:      LinkBridge,
			SourceSceneID: "scene-short",
		}
		if err := repository.CreateChainLink(context.Background(), link); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	links, err := NewLinkQuery(repository.DB(), "project-1").
		FromScene("scene-short").
		OrderBy("id").
		Limit(2).
		Offset(1).
		Execute(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 2 || links[0].ID != "link-2" || links[1].ID != "link-3" {
		t.Fatalf("unexpected page: %#v", links)
	}
}
