package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/llm/analysis"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Analyzer produces summary, keywords and sentiment through /api/generate in
// JSON mode.
type Analyzer struct {
	client          *Client
	executor        *resilience.Executor
	maxInputChars   int
	summaryMaxWords int
}

type AnalyzerOption func(*Analyzer)

func WithExecutor(executor *resilience.Executor) AnalyzerOption {
	return func(a *Analyzer) { a.executor = executor }
}

func WithLimits(maxInputChars, summaryMaxWords int) AnalyzerOption {
	return func(a *Analyzer) {
		if maxInputChars > 0 {
			a.maxInputChars = maxInputChars
		}
		if summaryMaxWords > 0 {
			a.summaryMaxWords = summaryMaxWords
		}
	}
}

func NewAnalyzer(client *Client, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		client:          client,
		maxInputChars:   analysis.DefaultMaxInputChars,
		summaryMaxWords: analysis.DefaultSummaryMaxWords,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (domain.AnalysisResult, error) {
	prompt := analysis.BuildPrompt(text, a.maxInputChars, a.summaryMaxWords)

	var raw string
	call := func(ctx context.Context) error {
		out, err := a.client.generateJSON(ctx, prompt)
		if err != nil {
			return err
		}
		raw = out
		return nil
	}

	var err error
	if a.executor != nil {
		err = a.executor.Execute(ctx, "ollama.generate", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisService, "ollama analyze", err)
	}
	return analysis.ParseResponse(raw, a.summaryMaxWords)
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}
