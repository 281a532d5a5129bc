package prose

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestAnalyzeEmptyText(t *testing.T) {
	metrics := Analyze("")
	if metrics.WordCount != 0 || metrics.CharCount != 0 {
		t.Fatalf("expected zeroed counts, got %#v", metrics)
	}
	if metrics.ReadingMinutes != 1 {
		t.Fatalf("expected the one-minute reading floor, got %d", metrics.ReadingMinutes)
	}
	if metrics.SentenceCount != 0 {
		t.Fatalf("expected 0 sentences, got %d", metrics.SentenceCount)
	}
	if metrics.Sentiment != 0.5 {
		t.Fatalf("expected neutral sentiment, got %v", metrics.Sentiment)
	}
	if len(metrics.Keywords) != 0 {
		t.Fatalf("expected no keywords, got %#v", metrics.Keywords)
	}
}

func TestAnalyzeCountsWordsAndSentences(t *testing.T) {
	metrics := Analyze("Maya ran hard through the dark. She did not look back!")
	if metrics.WordCount != 11 {
		t.Fatalf("expected 11 words, got %d", metrics.WordCount)
	}
	if metrics.SentenceCount != 2 {
		t.Fatalf("expected 2 sentences, got %d", metrics.SentenceCount)
	}
	if metrics.AvgSentenceLen != 5.5 {
		t.Fatalf("expected avg sentence length 5.5, got %v", metrics.AvgSentenceLen)
	}
}

func TestAnalyzeReadingMinutesNeverZeroForProse(t *testing.T) {
	if got := Analyze("Maya ran.").ReadingMinutes; got != 1 {
		t.Fatalf("short text should read in 1 minute, got %d", got)
	}
	long := strings.Repeat("word ", 600)
	if got := Analyze(long).ReadingMinutes; got != 2 {
		t.Fatalf("600 words should read in 2 minutes, got %d", got)
	}
}

func TestAnalyzeSentiment(t *testing.T) {
	metrics := Analyze("Hope and joy filled her, but fear followed.")
	want := 2.0 / 3.0
	if math.Abs(metrics.Sentiment-want) > 1e-9 {
		t.Fatalf("expected sentiment %v, got %v", want, metrics.Sentiment)
	}
	if Analyze("The chair stood in the room.").Sentiment != 0.5 {
		t.Fatalf("neutral text should score 0.5")
	}
}

func TestAnalyzeDialogueRatio(t *testing.T) {
	metrics := Analyze(`"Run," she said.`)
	if metrics.DialogueRatio <= 0 {
		t.Fatalf("expected some dialogue, got %v", metrics.DialogueRatio)
	}
	if Analyze("No dialogue here at all.").DialogueRatio != 0 {
		t.Fatalf("narration should have zero dialogue ratio")
	}
}

func TestAnalyzeReadabilityStaysInBounds(t *testing.T) {
	texts := []string{
		"Go. Run. Hide.",
		strings.Repeat("incomprehensibility notwithstanding, ", 40) + "the end.",
	}
	for _, text := range texts {
		score := Analyze(text).Readability
		if score < 0 || score > 100 {
			t.Fatalf("readability %v out of bounds for %q", score, text)
		}
	}
}

func TestTopKeywordsFrequencyThenAlphabetical(t *testing.T) {
	metrics := Analyze("bridge bridge river river flood the a an it")
	want := []string{"bridge", "river", "flood"}
	if !reflect.DeepEqual(metrics.Keywords, want) {
		t.Fatalf("expected %v, got %v", want, metrics.Keywords)
	}
}

func TestTopKeywordsSkipsShortAndStopWords(t *testing.T) {
	metrics := Analyze("the and is of ox ox ox")
	if len(metrics.Keywords) != 0 {
		t.Fatalf("expected no keywords, got %v", metrics.Keywords)
	}
}

func TestSyllablesEstimates(t *testing.T) {
	cases := []struct {
		word string
		want int
	}{
		{"ran", 1},
		{"table", 2},
		{"bridge", 1},
		{"despair", 2},
		{"a", 1},
	}
	for _, c := range cases {
		if got := syllables(c.word); got != c.want {
			t.Fatalf("syllables(%q) = %d, want %d", c.word, got, c.want)
		}
	}
}

func TestContentHashIsStableAndDistinct(t *testing.T) {
	a := ContentHash("Maya ran.")
	b := ContentHash("Maya ran.")
	c := ContentHash("Maya walked.")
	if a != b {
		t.Fatalf("identical text must hash identically")
	}
	if a == c {
		t.Fatalf("different text must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
