package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
)

const (
	defaultAnalysisTimeout = 2 * time.Minute
	terminalWriteTimeout   = 10 * time.Second
)

// AnalyzeDocumentUseCase is the analysis state machine. Every run ends with
// exactly one terminal write: complete with results, or failed without them.
type AnalyzeDocumentUseCase struct {
	repo      ports.DocumentRepository
	blobs     ports.BlobStore
	extractor ports.TextExtractor
	analyzer  ports.ContentAnalyzer
	locker    ports.AnalysisLocker

	analysisTimeout time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

type AnalyzeOption func(*AnalyzeDocumentUseCase)

func WithAnalysisTimeout(timeout time.Duration) AnalyzeOption {
	return func(uc *AnalyzeDocumentUseCase) {
		if timeout > 0 {
			uc.analysisTimeout = timeout
		}
	}
}

func WithAnalysisLocker(locker ports.AnalysisLocker) AnalyzeOption {
	return func(uc *AnalyzeDocumentUseCase) {
		uc.locker = locker
	}
}

func WithAnalysisLogger(logger *slog.Logger) AnalyzeOption {
	return func(uc *AnalyzeDocumentUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithAnalysisClock(now func() time.Time) AnalyzeOption {
	return func(uc *AnalyzeDocumentUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

func NewAnalyzeDocumentUseCase(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	extractor ports.TextExtractor,
	analyzer ports.ContentAnalyzer,
	opts ...AnalyzeOption,
) *AnalyzeDocumentUseCase {
	uc := &AnalyzeDocumentUseCase{
		repo:            repo,
		blobs:           blobs,
		extractor:       extractor,
		analyzer:        analyzer,
		analysisTimeout: defaultAnalysisTimeout,
		now:             func() time.Time { return time.Now().UTC() },
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// RunAnalysis converts every blob, extraction and analysis failure into the
// failed status. The returned error is non-nil only when no terminal state
// could be recorded for the current attempt.
func (uc *AnalyzeDocumentUseCase) RunAnalysis(ctx context.Context, documentID string) (domain.AnalysisStatus, error) {
	if uc.locker != nil {
		unlock, err := uc.locker.Lock(ctx, documentID)
		if err != nil {
			return "", fmt.Errorf("acquire analysis lock: %w", err)
		}
		defer unlock()
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("fetch document by id: %w", err)
	}
	attempt := doc.AnalysisAttempt
	startedAt := uc.now()

	result, pipelineErr := uc.runPipeline(ctx, doc)
	if pipelineErr != nil {
		doc.FailAnalysis(pipelineErr, uc.now())
	} else {
		doc.CompleteAnalysis(result, uc.now())
	}

	if err := uc.persistTerminal(ctx, doc, attempt); err != nil {
		return "", err
	}

	duration := uc.now().Sub(startedAt)
	if pipelineErr != nil {
		uc.logger.Warn("analysis_failed",
			"document_id", doc.ID,
			"duration_ms", duration.Milliseconds(),
			"error", pipelineErr,
		)
	} else {
		uc.logger.Info("analysis_complete",
			"document_id", doc.ID,
			"duration_ms", duration.Milliseconds(),
			"keywords", len(doc.AnalysisKeywords),
			"sentiment", string(doc.AnalysisSentiment),
		)
	}
	return doc.AnalysisStatus, nil
}

func (uc *AnalyzeDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document) (result domain.AnalysisResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = domain.AnalysisResult{}
			err = fmt.Errorf("analysis pipeline panic: %v", recovered)
		}
	}()

	data, err := uc.readBlob(ctx, doc)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	text, err := uc.extractText(ctx, doc, data)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	return uc.analyze(ctx, text)
}

func (uc *AnalyzeDocumentUseCase) readBlob(ctx context.Context, doc *domain.Document) ([]byte, error) {
	if doc.StoragePath == "" {
		return nil, domain.WrapError(domain.ErrBlobNotFound, "resolve blob", errors.New("storage path is empty"))
	}
	exists, err := uc.blobs.Exists(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("check blob %s: %w", doc.StoragePath, err)
	}
	if !exists {
		return nil, domain.WrapError(domain.ErrBlobNotFound, "resolve blob", fmt.Errorf("path=%s", doc.StoragePath))
	}
	data, err := uc.blobs.ReadAll(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", doc.StoragePath, err)
	}
	return data, nil
}

func (uc *AnalyzeDocumentUseCase) extractText(ctx context.Context, doc *domain.Document, data []byte) (string, error) {
	text, err := uc.extractor.Extract(ctx, data, doc.MimeType)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtraction) {
			return "", fmt.Errorf("extract text: %w", err)
		}
		return "", domain.WrapError(domain.ErrExtraction, "extract text", err)
	}
	if text == "" {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", errors.New("empty extracted text"))
	}
	return text, nil
}

func (uc *AnalyzeDocumentUseCase) analyze(ctx context.Context, text string) (domain.AnalysisResult, error) {
	analysisCtx, cancel := context.WithTimeout(ctx, uc.analysisTimeout)
	defer cancel()

	result, err := uc.analyzer.Analyze(analysisCtx, text)
	if err != nil {
		if domain.IsKind(err, domain.ErrAnalysisService) || domain.IsKind(err, domain.ErrAnalysisParse) {
			return domain.AnalysisResult{}, fmt.Errorf("analyze text: %w", err)
		}
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrAnalysisService, "analyze text", err)
	}
	if result.Summary == "" || len(result.Keywords) == 0 || !result.Sentiment.Valid() {
		return domain.AnalysisResult{}, domain.WrapError(
			domain.ErrAnalysisParse,
			"analyze text",
			fmt.Errorf("incomplete result: summary=%t keywords=%d sentiment=%q", result.Summary != "", len(result.Keywords), result.Sentiment),
		)
	}
	return result, nil
}

// persistTerminal detaches from ctx so a run that hit its deadline still
// records the failure.
func (uc *AnalyzeDocumentUseCase) persistTerminal(ctx context.Context, doc *domain.Document, attempt string) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
	defer cancel()

	if err := uc.repo.Save(writeCtx, doc, attempt); err != nil {
		if domain.IsKind(err, domain.ErrStaleAttempt) {
			uc.logger.Info("analysis_superseded", "document_id", doc.ID, "attempt", attempt)
			return fmt.Errorf("save %s status: %w", doc.AnalysisStatus, err)
		}
		uc.logger.Error("analysis_persist_failed",
			"document_id", doc.ID,
			"status", string(doc.AnalysisStatus),
			"error", err,
		)
		if domain.IsKind(err, domain.ErrPersistence) {
			return fmt.Errorf("save %s status: %w", doc.AnalysisStatus, err)
		}
		return domain.WrapError(domain.ErrPersistence, fmt.Sprintf("save %s status", doc.AnalysisStatus), err)
	}
	return nil
}
