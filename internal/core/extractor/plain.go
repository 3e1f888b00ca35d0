package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/markdave123-py/botwise/internal/core"
)

var (
	inlineSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// plainText returns content as valid UTF-8 with normalized line endings.
func plainText(content []byte) string {
	s := strings.ToValidUTF8(string(content), "\uFFFD")
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// normalizeLines collapses inline whitespace, trims every line and keeps at
// most one blank line between paragraphs.
func normalizeLines(s string) string {
	s = plainText([]byte(s))
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(l, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// extractCSV renders every record as "header: value" pairs, one record per line.
// The whole file is a single unit; the chunker splits it on line boundaries.
func extractCSV(content []byte, label string) ([]core.Unit, error) {
	r := csv.NewReader(bytes.NewReader([]byte(plainText(content))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		header []string
		b      strings.Builder
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if header == nil {
			header = rec
			continue
		}
		line := renderRecord(header, rec)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	// a lone header row is still content
	if b.Len() == 0 && len(header) > 0 {
		b.WriteString(strings.Join(header, ", "))
	}
	return []core.Unit{{Text: strings.TrimRight(b.String(), "\n"), PageIndex: 1, SourceLabel: label}}, nil
}

func renderRecord(header, rec []string) string {
	parts := make([]string, 0, len(rec))
	for i, v := range rec {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			parts = append(parts, strings.TrimSpace(header[i])+": "+v)
		} else {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
