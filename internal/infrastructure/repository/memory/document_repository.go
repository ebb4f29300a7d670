package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

// DocumentRepository keeps records in process memory. It backs local runs
// and tests and follows the same attempt semantics as the database stores.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[string]domain.Document)}
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrPersistence, "insert document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	r.docs[doc.ID] = clone(*doc)
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	out := clone(doc)
	return &out, nil
}

func (r *DocumentRepository) Save(_ context.Context, doc *domain.Document, expectedAttempt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", fmt.Errorf("id %s", doc.ID))
	}
	if stored.AnalysisAttempt != expectedAttempt {
		return domain.WrapError(domain.ErrStaleAttempt, "save analysis", fmt.Errorf("id %s attempt %s", doc.ID, expectedAttempt))
	}
	stored.AnalysisStatus = doc.AnalysisStatus
	stored.AnalysisSummary = doc.AnalysisSummary
	stored.AnalysisKeywords = append([]string(nil), doc.AnalysisKeywords...)
	stored.AnalysisSentiment = doc.AnalysisSentiment
	stored.AnalysisError = doc.AnalysisError
	stored.AnalysisAttempt = doc.AnalysisAttempt
	stored.AnalyzedAt = copyTime(doc.AnalyzedAt)
	stored.UpdatedAt = doc.UpdatedAt
	r.docs[doc.ID] = stored
	return nil
}

func (r *DocumentRepository) ListByStatus(_ context.Context, status domain.AnalysisStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Document
	for _, doc := range r.docs {
		if doc.AnalysisStatus == status && doc.UpdatedAt.Before(updatedBefore) {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(doc domain.Document) domain.Document {
	doc.AnalysisKeywords = append([]string(nil), doc.AnalysisKeywords...)
	doc.AnalyzedAt = copyTime(doc.AnalyzedAt)
	return doc
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
