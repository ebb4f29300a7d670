package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/llm/analysis"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/resilience"
)

const DefaultModel = "gemini-1.5-flash"

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Analyzer struct {
	client          *genai.Client
	model           contentGenerator
	executor        *resilience.Executor
	maxInputChars   int
	summaryMaxWords int
}

type Option func(*Analyzer)

func WithExecutor(executor *resilience.Executor) Option {
	return func(a *Analyzer) { a.executor = executor }
}

func WithLimits(maxInputChars, summaryMaxWords int) Option {
	return func(a *Analyzer) {
		if maxInputChars > 0 {
			a.maxInputChars = maxInputChars
		}
		if summaryMaxWords > 0 {
			a.summaryMaxWords = summaryMaxWords
		}
	}
}

func New(ctx context.Context, apiKey, modelName string, opts ...Option) (*Analyzer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	a := newAnalyzer(model, opts...)
	a.client = client
	return a, nil
}

func newAnalyzer(model contentGenerator, opts ...Option) *Analyzer {
	a := &Analyzer{
		model:           model,
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
		resp, err := a.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return fmt.Errorf("gemini generate content: %w", err)
		}
		out, err := responseText(resp)
		if err != nil {
			return err
		}
		raw = out
		return nil
	}

	var err error
	if a.executor != nil {
		err = a.executor.Execute(ctx, "gemini.generate", call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisService, "gemini analyze", err)
	}
	return analysis.ParseResponse(raw, a.summaryMaxWords)
}

func (a *Analyzer) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

var errEmptyResponse = errors.New("gemini returned no candidates")

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", errEmptyResponse
	}
	return sb.String(), nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
