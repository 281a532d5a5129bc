package prose

import (
	"context"
	"strings"
)

// Diff compares two versions of one scene's prose.
type Diff struct {
	VersionA string
	VersionB string

	WordCountDelta      int
	CharCountDelta      int
	ReadingMinutesDelta int
	ReadabilityDelta    float64
	SentimentDelta      float64

	// Similarity is word-set Jaccard similarity, 1.0 when both texts are
	// empty.
	Similarity float64
}

// Compare loads two versions and returns their metric deltas (B minus A)
// and similarity.
func (m *Manager) Compare(ctx context.Context, projectID, sceneID, versionA, versionB string) (*Diff, error) {
	a, err := m.GetVersion(ctx, projectID, sceneID, versionA)
	if err != nil {
		return nil, err
	}
	b, err := m.GetVersion(ctx, projectID, sceneID, versionB)
	if err != nil {
		return nil, err
	}
	return &Diff{
		VersionA:            a.Version,
		VersionB:            b.Version,
		WordCountDelta:      b.WordCount - a.WordCount,
		CharCountDelta:      b.CharCount - a.CharCount,
		ReadingMinutesDelta: b.ReadingMinutes - a.ReadingMinutes,
		ReadabilityDelta:    b.Readability - a.Readability,
		SentimentDelta:      b.Sentiment - a.Sentiment,
		Similarity:          jaccard(a.Body, b.Body),
	}, nil
}

// jaccard is |intersection| / |union| over lowercased word sets.
func jaccard(textA, textB string) float64 {
	setA := wordSet(textA)
	setB := wordSet(textB)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	intersection := 0
	for word := range setA {
		if setB[word] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = true
	}
	return set
}
