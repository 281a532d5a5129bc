package story

import (
	"context"
	"errors"
	"testing"
)

func TestCreateValidationLogRequiresValidator(t *testing.T) {
	repository, _ := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "Flood Novel")

	err := repository.CreateValidationLog(context.Background(), &ValidationLog{
		ID:        "log-1",
		ProjectID: "project-1",
	})
	if !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestDeleteValidationLogRemovesEntry(t *testing.T) {
	repository, db := newTestRepository(t, nil)
	mustCreateProject(t, repository, "project-1", "Flood Novel")

	log := &ValidationLog{
		ID:        "log-1",
		ProjectID: "project-1",
		Validator: "link-checker",
		Passed:    true,
		Score:     0.9,
	}
	if err := repository.CreateValidationLog(context.Background(), log); err != nil {
		t.Fatalf("failed to create validation log: %v", err)
	}

	if err := repository.DeleteValidationLog(context.Background(), "log-1"); err != nil {
		t.Fatalf("failed to delete validation log: %v", err)
	}

	var count int64
	if err := db.Model(&ValidationLog{}).Where("id = ?", "log-1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count logs: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected log to be removed, found %d rows", count)
	}
}

func TestDeleteValidationLogMissing(t *testing.T) {
	repository, _ := newTestRepository(t, nil)

	err := repository.DeleteValidationLog(context.Background(), "log-ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
