package analysis

import (
	"strings"
	"testing"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

func TestParseResponseStripsFences(t *testing.T) {
	raw := "```json\n{\"summary\":\"A study of rivers.\",\"keywords\":[\"rivers\",\"hydrology\"],\"sentiment\":\"Neutral\"}\n```"

	got, err := ParseResponse(raw, 200)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if got.Summary != "A study of rivers." || got.Sentiment != domain.SentimentNeutral {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(got.Keywords) != 2 || got.Keywords[1] != "hydrology" {
		t.Fatalf("unexpected keywords: %v", got.Keywords)
	}
}

func TestParseResponseToleratesSurroundingProse(t *testing.T) {
	raw := `Here is the analysis: {"summary":"S","keywords":["k"],"sentiment":"positive"} Hope it helps.`

	got, err := ParseResponse(raw, 200)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if got.Sentiment != domain.SentimentPositive {
		t.Fatalf("expected case-insensitive sentiment, got %q", got.Sentiment)
	}
}

func TestParseResponseRejectsIncompleteOutput(t *testing.T) {
	cases := map[string]string{
		"not json":          "the thesis is great",
		"missing summary":   `{"keywords":["a"],"sentiment":"Neutral"}`,
		"empty keywords":    `{"summary":"S","keywords":[" ",""],"sentiment":"Neutral"}`,
		"unknown sentiment": `{"summary":"S","keywords":["a"],"sentiment":"Mixed"}`,
		"failed sentinel":   `{"summary":"S","keywords":["a"],"sentiment":"Failed"}`,
		"truncated":         `{"summary":"S","keywords":["a"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResponse(raw, 200)
			if !domain.IsKind(err, domain.ErrAnalysisParse) {
				t.Fatalf("expected parse error, got %v", err)
			}
		})
	}
}

func TestParseResponseEnforcesLimits(t *testing.T) {
	long := strings.Repeat("word ", 250)
	raw := `{"summary":"` + long + `","keywords":["a","A","b","c","d","e","f","g","h","i","j","k"],"sentiment":"Negative"}`

	got, err := ParseResponse(raw, 200)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if n := len(strings.Fields(got.Summary)); n != 200 {
		t.Fatalf("expected 200 words, got %d", n)
	}
	if len(got.Keywords) != MaxKeywords {
		t.Fatalf("expected %d keywords, got %d: %v", MaxKeywords, len(got.Keywords), got.Keywords)
	}
	if got.Keywords[0] != "a" || got.Keywords[1] != "b" {
		t.Fatalf("expected case-insensitive dedupe keeping first, got %v", got.Keywords)
	}
}

func TestNormalizationIsIdempotent(t *testing.T) {
	raw := "```\n{\"summary\":\"  Two   spaces. \",\"keywords\":[\" Deep  Learning \",\"deep learning\",\"NLP\"],\"sentiment\":\"POSITIVE\"}\n```"

	first, err := ParseResponse(raw, 200)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	again := `{"summary":"` + first.Summary + `","keywords":["` + strings.Join(first.Keywords, `","`) + `"],"sentiment":"` + string(first.Sentiment) + `"}`
	second, err := ParseResponse(again, 200)
	if err != nil {
		t.Fatalf("second ParseResponse() error = %v", err)
	}
	if first.Summary != second.Summary || first.Sentiment != second.Sentiment || strings.Join(first.Keywords, "|") != strings.Join(second.Keywords, "|") {
		t.Fatalf("normalization not idempotent: %+v vs %+v", first, second)
	}
	if first.Summary != "Two spaces." || strings.Join(first.Keywords, "|") != "Deep Learning|NLP" {
		t.Fatalf("unexpected normalization: %+v", first)
	}
}

func TestBuildPromptTruncatesInput(t *testing.T) {
	prompt := BuildPrompt(strings.Repeat("я", 50), 10, 150)
	if !strings.HasSuffix(prompt, strings.Repeat("я", 10)) || strings.Contains(prompt, strings.Repeat("я", 11)) {
		t.Fatalf("expected rune-safe truncation, got %q", prompt)
	}
	if !strings.Contains(prompt, "at most 150 words") {
		t.Fatalf("expected word limit in prompt")
	}
}
