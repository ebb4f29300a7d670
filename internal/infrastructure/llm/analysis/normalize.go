package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

type rawResult struct {
	Summary   string   `json:"summary"`
	Keywords  []string `json:"keywords"`
	Sentiment string   `json:"sentiment"`
}

// StripWrappers removes markdown fences and any prose around the outermost
// JSON object.
func StripWrappers(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// ParseResponse turns raw model output into a complete result. Any missing
// or malformed field fails the whole response with ErrAnalysisParse.
func ParseResponse(raw string, maxWords int) (domain.AnalysisResult, error) {
	const op = "parse analysis response"
	if maxWords <= 0 {
		maxWords = DefaultSummaryMaxWords
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(StripWrappers(raw)), &parsed); err != nil {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisParse, op, err)
	}

	summary := limitWords(strings.TrimSpace(parsed.Summary), maxWords)
	if summary == "" {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisParse, op, errors.New("summary is empty"))
	}

	keywords := NormalizeKeywords(parsed.Keywords)
	if len(keywords) == 0 {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisParse, op, errors.New("keywords are empty"))
	}

	sentiment, ok := domain.ParseSentiment(parsed.Sentiment)
	if !ok {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisParse, op, fmt.Errorf("unknown sentiment %q", parsed.Sentiment))
	}

	return domain.AnalysisResult{
		Summary:   summary,
		Keywords:  keywords,
		Sentiment: sentiment,
	}, nil
}

// NormalizeKeywords trims, drops blanks and case-insensitive duplicates, and
// caps the list at MaxKeywords. Order of first occurrence is kept.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.Join(strings.Fields(kw), " ")
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

func limitWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ")
}
