package ports

import (
	"context"
	"io"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

// DocumentSubmitter is the inbound contract for thesis upload. It returns once
// the record is durable in pending state.
type DocumentSubmitter interface {
	Submit(ctx context.Context, submission domain.Submission, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// AnalysisService exposes analysis results and re-triggers a fresh attempt.
type AnalysisService interface {
	GetAnalysis(ctx context.Context, documentID string) (*domain.AnalysisView, error)
	Reanalyze(ctx context.Context, documentID string) (*domain.AnalysisView, error)
}

// AnalysisRunner drives one document through extraction and analysis.
type AnalysisRunner interface {
	RunAnalysis(ctx context.Context, documentID string) (domain.AnalysisStatus, error)
}
