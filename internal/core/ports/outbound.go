package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Save replaces the mutable analysis fields of doc. The write only applies
	// while the stored attempt token equals expectedAttempt; otherwise it fails
	// with domain.ErrStaleAttempt.
	Save(ctx context.Context, doc *domain.Document, expectedAttempt string) error
	ListByStatus(ctx context.Context, status domain.AnalysisStatus, updatedBefore time.Time, limit int) ([]domain.Document, error)
}

// BlobStore stores uploaded source documents.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	// ReadAll returns domain.ErrBlobNotFound when key is absent.
	ReadAll(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when key is already absent.
	Delete(ctx context.Context, key string) error
}

// AnalysisTrigger hands an analysis request to the background workers without
// waiting for the analysis itself.
type AnalysisTrigger interface {
	RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error
}

// AnalysisRequestSource delivers analysis requests to a handler until ctx ends.
type AnalysisRequestSource interface {
	SubscribeAnalysisRequests(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error
}

// TextExtractor converts document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
	Supports(mimeType string) bool
}

// ContentAnalyzer produces summary, keywords and sentiment for a text.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.AnalysisResult, error)
}

// AnalysisLocker serializes analysis runs of the same document.
type AnalysisLocker interface {
	Lock(ctx context.Context, documentID string) (unlock func(), err error)
}
