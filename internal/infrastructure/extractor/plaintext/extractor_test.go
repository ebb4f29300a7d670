package plaintext

import (
	"context"
	"testing"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

func TestExtractTrimsAndStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("  Chapter 1\nIntro  \n")...)

	got, err := NewExtractor().Extract(context.Background(), data, "text/plain")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "Chapter 1\nIntro" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestExtractRejectsBinary(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte{0xff, 0xfe, 0x00, 0x81}, "text/plain")
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestSupports(t *testing.T) {
	e := NewExtractor()
	if !e.Supports("text/markdown") || e.Supports("application/pdf") {
		t.Fatalf("unexpected Supports result")
	}
}
