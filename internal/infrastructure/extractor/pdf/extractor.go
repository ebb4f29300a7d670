package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

const MimeType = "application/pdf"

// Extractor validates the document structure with pdfcpu and reads the text
// layer with ledongthuc/pdf. Scanned PDFs without a text layer yield "".
type Extractor struct {
	validate bool
}

type Option func(*Extractor)

// WithoutValidation skips the pdfcpu structural check.
func WithoutValidation() Option {
	return func(e *Extractor) { e.validate = false }
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{validate: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Supports(mimeType string) bool {
	return mimeType == MimeType
}

func (e *Extractor) Extract(ctx context.Context, data []byte, _ string) (text string, err error) {
	const op = "extract pdf text"
	if len(data) == 0 {
		return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("empty pdf"))
	}

	// Malformed input can panic inside the parser.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	if e.validate {
		cfg := model.NewDefaultConfiguration()
		cfg.ValidationMode = model.ValidationRelaxed
		if err := api.Validate(bytes.NewReader(data), cfg); err != nil {
			return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("validate pdf: %w", err))
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("open pdf: %w", err))
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("read text layer: %w", err))
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("read text layer: %w", err))
	}
	return strings.TrimSpace(string(raw)), nil
}
