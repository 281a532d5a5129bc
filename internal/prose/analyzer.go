// Package prose owns the versioning protocol for scene text and the pure
// content analysis that feeds version metrics.
package prose

import (
	"sort"
	"strings"
	"unicode"
)

const (
	wordsPerMinute = 250
	maxKeywords    = 10
)

// Metrics are the deterministic measurements of one body of text.
type Metrics struct {
	WordCount      int
	CharCount      int
	ReadingMinutes int
	SentenceCount  int
	AvgSentenceLen float64
	Readability    float64
	Sentiment      float64
	DialogueRatio  float64
	Keywords       []string
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "he": true, "her": true, "his": true, "i": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "she": true, "that": true, "the": true, "their": true,
	"them": true, "then": true, "there": true, "they": true, "this": true,
	"to": true, "was": true, "were": true, "which": true, "with": true,
	"you": true,
}

var positiveWords = map[string]bool{
	"love": true, "hope": true, "joy": true, "bright": true, "calm": true,
	"safe": true, "warm": true, "triumph": true, "victory": true, "smile": true,
	"laugh": true, "trust": true, "brave": true, "free": true, "peace": true,
}

var negativeWords = map[string]bool{
	"fear": true, "dark": true, "pain": true, "loss": true, "dread": true,
	"cold": true, "danger": true, "death": true, "betray": true, "cry": true,
	"anger": true, "hate": true, "trap": true, "flood": true, "despair": true,
}

// Analyze computes all metrics for text. It is pure and deterministic so
// duplicate detection and tests are reproducible.
func Analyze(text string) Metrics {
	words := strings.Fields(text)
	metrics := Metrics{
		WordCount: len(words),
		CharCount: len([]rune(text)),
	}
	// Reading time floors at one minute, empty text included.
	metrics.ReadingMinutes = metrics.WordCount / wordsPerMinute
	if metrics.ReadingMinutes < 1 {
		metrics.ReadingMinutes = 1
	}

	metrics.SentenceCount = countSentences(text)
	if metrics.SentenceCount > 0 {
		metrics.AvgSentenceLen = float64(metrics.WordCount) / float64(metrics.SentenceCount)
	}
	metrics.Readability = readability(words, metrics.SentenceCount)
	metrics.Sentiment = sentiment(words)
	metrics.DialogueRatio = dialogueRatio(text, metrics.WordCount)
	metrics.Keywords = topKeywords(words, maxKeywords)
	return metrics
}

// countSentences splits on sentence-terminal punctuation, collapsing runs
// such as "?!" or "..." into one boundary.
func countSentences(text string) int {
	count := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun {
				count++
				inRun = true
			}
		default:
			inRun = false
		}
	}
	if count == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return count
}

// syllables estimates syllable count by counting vowel groups with a
// silent trailing-e correction, never returning less than one.
func syllables(word string) int {
	lower := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r)
	}))
	if lower == "" {
		return 0
	}
	count := 0
	prevVowel := false
	for _, r := range lower {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(lower, "e") && !strings.HasSuffix(lower, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

// readability is a Flesch reading-ease estimate clamped to [0,100].
func readability(words []string, sentenceCount int) float64 {
	if len(words) == 0 || sentenceCount == 0 {
		return 0
	}
	totalSyllables := 0
	for _, word := range words {
		totalSyllables += syllables(word)
	}
	score := 206.835 -
		1.015*(float64(len(words))/float64(sentenceCount)) -
		84.6*(float64(totalSyllables)/float64(len(words)))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// sentiment is positiveHits / (positiveHits + negativeHits), 0.5 when the
// text carries no sentiment words.
func sentiment(words []string) float64 {
	positive, negative := 0, 0
	for _, word := range words {
		token := normalizeToken(word)
		if positiveWords[token] {
			positive++
		}
		if negativeWords[token] {
			negative++
		}
	}
	if positive+negative == 0 {
		return 0.5
	}
	return float64(positive) / float64(positive+negative)
}

// dialogueRatio is the share of words that fall inside double-quoted spans.
func dialogueRatio(text string, wordCount int) float64 {
	if wordCount == 0 {
		return 0
	}
	quoted := 0
	inQuote := false
	for _, segment := range strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	}) {
		opens := strings.Count(segment, `"`)
		wasIn := inQuote
		if opens%2 == 1 {
			inQuote = !inQuote
		}
		if wasIn || strings.HasPrefix(segment, `"`) {
			quoted++
		}
	}
	return float64(quoted) / float64(wordCount)
}

// topKeywords ranks stop-word-filtered tokens by frequency then
// alphabetically, returning at most n.
func topKeywords(words []string, n int) []string {
	frequency := make(map[string]int)
	for _, word := range words {
		token := normalizeToken(word)
		if len(token) < 3 || stopWords[token] {
			continue
		}
		frequency[token]++
	}
	tokens := make([]string, 0, len(frequency))
	for token := range frequency {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if frequency[tokens[i]] != frequency[tokens[j]] {
			return frequency[tokens[i]] > frequency[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	if len(tokens) > n {
		tokens = tokens[:n]
	}
	return tokens
}

func normalizeToken(word string) string {
	return strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}
