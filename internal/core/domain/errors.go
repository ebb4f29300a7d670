package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")

	ErrBlobNotFound    = errors.New("blob not found")
	ErrExtraction      = errors.New("text extraction failed")
	ErrAnalysisService = errors.New("analysis service failure")
	ErrAnalysisParse   = errors.New("analysis response unparseable")
	ErrPersistence     = errors.New("persistence failure")

	// ErrStaleAttempt means a newer analysis attempt replaced the one being saved.
	ErrStaleAttempt = errors.New("stale analysis attempt")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
