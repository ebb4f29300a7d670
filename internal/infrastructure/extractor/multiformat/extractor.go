package multiformat

import (
	"context"
	"fmt"
	"mime"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
	"github.com/kirillkom/thesis-analysis/internal/core/ports"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/thesis-analysis/internal/infrastructure/extractor/xlsx"
)

// Extractor routes to the first registered extractor that supports the
// declared mime type. Records stored as application/octet-stream are sniffed.
type Extractor struct {
	extractors []ports.TextExtractor
}

func New(extractors ...ports.TextExtractor) *Extractor {
	return &Extractor{extractors: extractors}
}

// NewDefault registers PDF, spreadsheet and plain text extraction.
func NewDefault() *Extractor {
	return New(pdf.NewExtractor(), xlsx.NewExtractor(), plaintext.NewExtractor())
}

func (e *Extractor) Supports(mimeType string) bool {
	return e.pick(mimeType) != nil
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	resolved := mimeType
	if resolved == "" || resolved == "application/octet-stream" {
		resolved = e.sniff(data)
	}
	ex := e.pick(resolved)
	if ex == nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", fmt.Errorf("unsupported document type %q", mimeType))
	}
	return ex.Extract(ctx, data, resolved)
}

func (e *Extractor) pick(mimeType string) ports.TextExtractor {
	for _, ex := range e.extractors {
		if ex.Supports(mimeType) {
			return ex
		}
	}
	return nil
}

// sniff walks the detected type up its parents until a registered extractor
// accepts it, so html falls back to text/plain while a bare zip archive stays
// unsupported.
func (e *Extractor) sniff(data []byte) string {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		base, _, err := mime.ParseMediaType(m.String())
		if err != nil {
			continue
		}
		if e.pick(base) != nil {
			return base
		}
	}
	return detected.String()
}
