package analysis

import (
	"fmt"
	"unicode/utf8"
)

const (
	DefaultMaxInputChars   = 30000
	DefaultSummaryMaxWords = 200
	MaxKeywords            = 10
)

// BuildPrompt asks for a single JSON object with summary, keywords and
// sentiment. Text beyond maxChars runes is cut off.
func BuildPrompt(text string, maxChars, maxWords int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	if maxWords <= 0 {
		maxWords = DefaultSummaryMaxWords
	}

	return fmt.Sprintf(`You analyze academic theses.
Return one strict JSON object with exactly these keys:
summary (string, concise, at most %d words),
keywords (array of 5 to %d short strings),
sentiment (one of "Positive", "Neutral", "Negative").
No markdown, no code fences, no extra keys.

Thesis text:
%s`, maxWords, MaxKeywords, truncateRunes(text, maxChars))
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
