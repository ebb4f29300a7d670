package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
)

const (
	// sniffLen matches mimetype's default read limit.
	sniffLen       = 3072
	triggerTimeout = 10 * time.Second
	cleanupTimeout = 5 * time.Second
)

type SubmitDocumentUseCase struct {
	repo      ports.DocumentRepository
	blobs     ports.BlobStore
	trigger   ports.AnalysisTrigger
	extractor ports.TextExtractor
	now       func() time.Time
}

func NewSubmitDocumentUseCase(
	repo ports.DocumentRepository,
	blobs ports.BlobStore,
	trigger ports.AnalysisTrigger,
	extractor ports.TextExtractor,
) *SubmitDocumentUseCase {
	return &SubmitDocumentUseCase{
		repo:      repo,
		blobs:     blobs,
		trigger:   trigger,
		extractor: extractor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores the blob, creates the pending record and requests analysis.
// A failed trigger is logged and leaves the record pending; the submission
// itself has already succeeded at that point. Once the record exists the
// request is published even if the caller goes away.
func (uc *SubmitDocumentUseCase) Submit(
	ctx context.Context,
	submission domain.Submission,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(submission.Filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", errors.New("filename is required"))
	}
	buffered := bufio.NewReaderSize(body, sniffLen)
	// A short or failing read leaves head partial; Save reports the read error.
	head, _ := buffered.Peek(sniffLen)
	mimeType := resolveMimeType(submission.Filename, submission.MimeType, head)
	if !uc.extractor.Supports(mimeType) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit document", fmt.Errorf("unsupported document type %q", mimeType))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(submission.Filename))
	now := uc.now()

	if err := uc.blobs.Save(ctx, storageKey, buffered); err != nil {
		return nil, fmt.Errorf("save to blob storage: %w", err)
	}

	doc := &domain.Document{
		ID:              id,
		Filename:        submission.Filename,
		MimeType:        mimeType,
		StoragePath:     storageKey,
		Title:           strings.TrimSpace(submission.Title),
		AuthorName:      strings.TrimSpace(submission.AuthorName),
		AnalysisStatus:  domain.AnalysisPending,
		AnalysisAttempt: uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discardBlob(ctx, storageKey)
		return nil, fmt.Errorf("create document record: %w", err)
	}

	req := domain.AnalysisRequest{DocumentID: doc.ID, RequestedAt: now}
	if err := requestDetached(ctx, uc.trigger, req); err != nil {
		slog.Error("analysis_trigger_failed", "document_id", doc.ID, "error", err)
	}

	return doc, nil
}

// discardBlob removes a blob whose record could not be created.
func (uc *SubmitDocumentUseCase) discardBlob(ctx context.Context, key string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := uc.blobs.Delete(cleanupCtx, key); err != nil {
		slog.Warn("orphan_blob_cleanup_failed", "storage_path", key, "error", err)
	}
}

// requestDetached publishes req after the record change is durable. The
// caller's cancellation must not strand the record in pending.
func requestDetached(ctx context.Context, trigger ports.AnalysisTrigger, req domain.AnalysisRequest) error {
	triggerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), triggerTimeout)
	defer cancel()
	return trigger.RequestAnalysis(triggerCtx, req)
}

// mime.TypeByExtension depends on the host's mime tables for these.
var knownExtensions = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// resolveMimeType prefers the declared type, then the extension, then the
// content of head.
func resolveMimeType(filename, declared string, head []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if known, ok := knownExtensions[ext]; ok {
		return known
	}
	if len(head) > 0 {
		detected := mimetype.Detect(head)
		if !detected.Is("application/octet-stream") {
			if mediaType, _, err := mime.ParseMediaType(detected.String()); err == nil {
				return mediaType
			}
		}
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
