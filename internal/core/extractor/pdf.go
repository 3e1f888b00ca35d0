package extractor

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/botwise/internal/core"
)

// extractPDF emits one unit per non-empty page, with 1-based page indexes.
func extractPDF(content []byte, label string) (units []core.Unit, err error) {
	// the pdf reader panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("open PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		units = append(units, core.Unit{
			Text:        normalizeLines(text),
			PageIndex:   i,
			SourceLabel: fmt.Sprintf("%s p.%d", label, i),
		})
	}
	return units, nil
}
