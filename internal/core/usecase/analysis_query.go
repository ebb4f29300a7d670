package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
)

type AnalysisQueryUseCase struct {
	repo    ports.DocumentRepository
	trigger ports.AnalysisTrigger
	now     func() time.Time
}

func NewAnalysisQueryUseCase(repo ports.DocumentRepository, trigger ports.AnalysisTrigger) *AnalysisQueryUseCase {
	return &AnalysisQueryUseCase{
		repo:    repo,
		trigger: trigger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *AnalysisQueryUseCase) GetAnalysis(ctx context.Context, documentID string) (*domain.AnalysisView, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	view := domain.NewAnalysisView(doc)
	return &view, nil
}

// Reanalyze starts a fresh attempt. The new attempt token makes any run still
// in flight for the previous attempt unable to write its result.
func (uc *AnalysisQueryUseCase) Reanalyze(ctx context.Context, documentID string) (*domain.AnalysisView, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}

	previousAttempt := doc.AnalysisAttempt
	now := uc.now()
	doc.ResetAnalysis(uuid.NewString(), now)
	if err := uc.repo.Save(ctx, doc, previousAttempt); err != nil {
		return nil, fmt.Errorf("reset analysis: %w", err)
	}

	req := domain.AnalysisRequest{DocumentID: doc.ID, RequestedAt: now}
	if err := requestDetached(ctx, uc.trigger, req); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "request analysis", err)
	}

	view := domain.NewAnalysisView(doc)
	return &view, nil
}

// ListStuck returns pending records whose last update is older than updatedBefore.
func (uc *AnalysisQueryUseCase) ListStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := uc.repo.ListByStatus(ctx, domain.AnalysisPending, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending documents: %w", err)
	}
	return docs, nil
}

// Requeue re-publishes a request for a pending record without starting a new
// attempt.
func (uc *AnalysisQueryUseCase) Requeue(ctx context.Context, doc domain.Document) error {
	if doc.AnalysisStatus != domain.AnalysisPending {
		return domain.WrapError(domain.ErrInvalidInput, "requeue", fmt.Errorf("document %s is %s", doc.ID, doc.AnalysisStatus))
	}
	req := domain.AnalysisRequest{DocumentID: doc.ID, RequestedAt: uc.now()}
	if err := requestDetached(ctx, uc.trigger, req); err != nil {
		return domain.WrapError(domain.ErrTemporary, "request analysis", err)
	}
	return nil
}
