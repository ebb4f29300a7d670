package plaintext

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/markdown", "text/csv":
		return true
	default:
		return false
	}
}

func (e *Extractor) Extract(_ context.Context, data []byte, _ string) (string, error) {
	raw := bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrExtraction, "extract plain text", errors.New("content is not valid utf-8"))
	}
	return strings.TrimSpace(string(raw)), nil
}
