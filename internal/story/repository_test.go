package story

import (
	"context"
	"errors"
	"testing"
)

func TestCreateProjectGeneratesIDWhenEmpty(t *testing.T) {
	repository, _ := newTestRepository(t, []string{"project-gen-1"})

	project := &Project{Title: "The Flooded Bridge", Status: ProjectStatusDraft}
	if err := repository.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if project.ID != "project-gen-1" {
		t.Fatalf("expected generated id, got %q", project.ID)
	}

	loaded, err := repository.GetProject(context.Background(), "project-gen-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Title != "The Flooded Bridge" {
		t.Fatalf("unexpected title %q", loaded.Title)
	}
}

func TestCreateProjectRejectsDuplicateID(t *testing.T) {
	repository, _ := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "First")

	err := repository.CreateProject(context.Background(), &Project{
		ID:     "project-1",
		Title:  "Second",
		Status: ProjectStatusDraft,
	})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestCreateProjectRejectsBlankTitleAndUnknownStatus(t *testing.T) {
	repository, _ := newTestRepository(t, nil)

	err := repository.CreateProject(context.Background(), &Project{ID: "p", Title: "  ", Status: ProjectStatusDraft})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected constraint violation for blank title, got %v", err)
	}
	err = repository.CreateProject(context.Background(), &Project{ID: "p", Title: "x", Status: ProjectStatus("archived")})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected constraint violation for unknown status, got %v", err)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	repository, _ := newTestRepository(t, nil)

	_, err := repository.GetProject(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateProjectReplacesMutableFields(t *testing.T) {
	repository, _ := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "Draft Title")

	err := repository.UpdateProject(context.Background(), &Project{
		ID:              "project-1",
		Title:           "Final Title",
		TargetWordCount: 90000,
		Status:          ProjectStatusInProgress,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := repository.GetProject(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Title != "Final Title" || loaded.TargetWordCount != 90000 || loaded.Status != ProjectStatusInProgress {
		t.Fatalf("unexpected project state: %#v", loaded)
	}
}

func TestListProjectsEscapesSearchMetacharacters(t *testing.T) {
	repository, _ := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "100% Done")
	mustCreateProject(t, repository, "project-2", "Halfway There")

	projects, err := repository.ListProjects(context.Background(), ProjectFilter{TitleContains: "100%"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != "project-1" {
		t.Fatalf("expected only the literal match, got %#v", projects)
	}
}

func TestDeleteProjectCascadesToOwnedEntities(t *testing.T) {
	repository, db := newTestRepository(t, []string{"log-1"})
	mustCreateProject(t, repository, "project-1", "Doomed")
	mustCreateScene(t, repository, goalScene("project-1", "scene-1", "Maya"))
	mustCreateScene(t, repository, reactionScene("project-1", "scene-2", "Maya"))

	link := &ChainLink{
		ProjectID:     "project-1",
		ID:            "link-1",
		LinkType:      LinkSetbackReaction,
		SourceSceneID: "scene-1",
		TargetSceneID: "scene-2",
		Score:         0.8,
	}
	if err := repository.CreateChainLink(context.Background(), link); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := repository.CreateSequence(context.Background(), &Sequence{
		ProjectID:  "project-1",
		ID:         "seq-1",
		Title:      "Act One",
		SceneOrder: StringList{"scene-1", "scene-2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = repository.CreateValidationLog(context.Background(), &ValidationLog{
		ProjectID: "project-1",
		SceneID:   "scene-1",
		Validator: "chain-checker",
		Passed:    true,
		Score:     0.9,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repository.DeleteProject(context.Background(), "project-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, model := range []any{
		&Project{}, &SceneCard{}, &ChainLink{}, &Sequence{}, &ValidationLog{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 0 {
			t.Fatalf("expected %T rows to be gone, found %d", model, count)
		}
	}
}

func TestDeleteProjectNotFound(t *testing.T) {
	repository, _ := newTestRepository(t, nil)

	err := repository.DeleteProject(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
