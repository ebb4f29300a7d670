package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

type saveCall struct {
	doc             domain.Document
	expectedAttempt string
}

type repoFake struct {
	mu        sync.Mutex
	doc       *domain.Document
	created   *domain.Document
	getErr    error
	createErr error
	saveErr   error
	saves     []saveCall
	listed    []domain.Document
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.created = &copyDoc
	f.doc = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.doc == nil || f.doc.ID != id {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New(id))
	}
	copyDoc := *f.doc
	copyDoc.AnalysisKeywords = append([]string(nil), f.doc.AnalysisKeywords...)
	return &copyDoc, nil
}

func (f *repoFake) Save(_ context.Context, doc *domain.Document, expectedAttempt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, saveCall{doc: *doc, expectedAttempt: expectedAttempt})
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.doc == nil || f.doc.ID != doc.ID {
		return domain.WrapError(domain.ErrDocumentNotFound, "save", errors.New(doc.ID))
	}
	if f.doc.AnalysisAttempt != expectedAttempt {
		return domain.WrapError(domain.ErrStaleAttempt, "save", errors.New(expectedAttempt))
	}
	copyDoc := *doc
	f.doc = &copyDoc
	return nil
}

func (f *repoFake) ListByStatus(_ context.Context, status domain.AnalysisStatus, _ time.Time, limit int) ([]domain.Document, error) {
	var out []domain.Document
	for _, doc := range f.listed {
		if doc.AnalysisStatus == status && len(out) < limit {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *repoFake) current() domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.doc
}

type blobFake struct {
	files     map[string][]byte
	existsErr error
	readErr   error
	saveErr   error
	deleteErr error
	savedKey  string
	savedBody string
	deleted   []string
}

func (f *blobFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *blobFake) Exists(_ context.Context, key string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.files[key]
	return ok, nil
}

func (f *blobFake) ReadAll(_ context.Context, key string) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.files[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrBlobNotFound, "read", errors.New(key))
	}
	return data, nil
}

func (f *blobFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

type extractorFake struct {
	text      string
	err       error
	panicWith any
	calls     int
	supported map[string]bool
}

func (f *extractorFake) Extract(context.Context, []byte, string) (string, error) {
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *extractorFake) Supports(mimeType string) bool {
	if f.supported == nil {
		return true
	}
	return f.supported[mimeType]
}

type analyzerFake struct {
	results    []domain.AnalysisResult
	err        error
	waitForCtx bool
	calls      int
	gotText    string
}

func (f *analyzerFake) Analyze(ctx context.Context, text string) (domain.AnalysisResult, error) {
	f.calls++
	f.gotText = text
	if f.waitForCtx {
		<-ctx.Done()
		return domain.AnalysisResult{}, ctx.Err()
	}
	if f.err != nil {
		return domain.AnalysisResult{}, f.err
	}
	idx := f.calls - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

type triggerFake struct {
	requests []domain.AnalysisRequest
	err      error
}

// RequestAnalysis refuses cancelled contexts like the real queues do.
func (f *triggerFake) RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

type lockerFake struct {
	locked   []string
	unlocked int
	err      error
}

func (f *lockerFake) Lock(_ context.Context, documentID string) (func(), error) {
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, documentID)
	return func() { f.unlocked++ }, nil
}
