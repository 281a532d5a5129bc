package prose

import (
	"context"
	"math"
	"testing"
)

func TestCompareReportsDeltasAndSimilarity(t *testing.T) {
	manager, db := newTestManager(t, []string{"v-1", "v-2"})
	seedScene(t, db, "project-1", "scene-1")

	if _, err := manager.CreateVersion(context.Background(), "project-1", "scene-1",
		"Maya ran.", "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := manager.CreateVersion(context.Background(), "project-1", "scene-1",
		"Maya ran hard through the dark.", "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	diff, err := manager.Compare(context.Background(), "project-1", "scene-1", "1.0.0", "1.1.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff.VersionA != "1.0.0" || diff.VersionB != "1.1.0" {
		t.Fatalf("unexpected versions: %#v", diff)
	}
	if diff.WordCountDelta != 4 {
		t.Fatalf("expected word delta 4, got %d", diff.WordCountDelta)
	}
	// Only "maya" is shared; "ran." and "ran" differ. Union has 7 tokens.
	want := 1.0 / 7.0
	if math.Abs(diff.Similarity-want) > 1e-9 {
		t.Fatalf("expected similarity %v, got %v", want, diff.Similarity)
	}
}

func TestCompareMissingVersion(t *testing.T) {
	manager, db := newTestManager(t, []string{"v-1"})
	seedScene(t, db, "project-1", "scene-1")

	if _, err := manager.CreateVersion(context.Background(), "project-1", "scene-1",
		"Maya ran.", "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := manager.Compare(context.Background(), "project-1", "scene-1", "1.0.0", "2.0.0"); err == nil {
		t.Fatalf("expected an error for the missing version")
	}
}

func TestJaccardBothEmptyIsOne(t *testing.T) {
	if got := jaccard("", ""); got != 1.0 {
		t.Fatalf("expected 1.0 for two empty texts, got %v", got)
	}
	if got := jaccard("word", ""); got != 0 {
		t.Fatalf("expected 0 when one side is empty, got %v", got)
	}
	if got := jaccard("a b c", "a b c"); got != 1.0 {
		t.Fatalf("expected 1.0 for identical texts, got %v", got)
	}
}
