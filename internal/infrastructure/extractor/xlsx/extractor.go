package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

const MimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Extractor flattens every sheet into tab-separated lines, one block per
// sheet headed by its name. Appendix tables are often submitted this way.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Supports(mimeType string) bool {
	return mimeType == MimeType
}

func (e *Extractor) Extract(ctx context.Context, data []byte, _ string) (string, error) {
	const op = "extract xlsx text"
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("open workbook: %w", err))
	}
	defer book.Close()

	var sb strings.Builder
	for _, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return "", domain.WrapError(domain.ErrExtraction, op, fmt.Errorf("read sheet %q: %w", sheet, err))
		}
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("# ")
		sb.WriteString(sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteByte('\n')
			sb.WriteString(line)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
