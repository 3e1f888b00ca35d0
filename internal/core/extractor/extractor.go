package extractor

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/botwise/internal/core"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatText    Format = "text"
	FormatCSV     Format = "csv"
	FormatDOCX    Format = "docx"
	FormatOffice  Format = "office"
	FormatHTML    Format = "html"
)

// ResolveFormat picks a format from the declared MIME type, then the file extension.
func ResolveFormat(mimeType, name string) Format {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = ""
	}
	switch strings.ToLower(mt) {
	case "application/pdf":
		return FormatPDF
	case "text/plain", "text/markdown", "text/x-markdown":
		return FormatText
	case "text/csv", "application/csv":
		return FormatCSV
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX
	case "application/msword", "application/vnd.oasis.opendocument.text", "application/rtf", "text/rtf":
		return FormatOffice
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".txt", ".md", ".markdown":
		return FormatText
	case ".csv":
		return FormatCSV
	case ".html", ".htm":
		return FormatHTML
	case ".docx":
		return FormatDOCX
	case ".doc", ".odt", ".rtf":
		return FormatOffice
	}
	return FormatUnknown
}

// Extractor implements core.DocumentExtractor for every supported training format.
type Extractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*Extractor)(nil)

func New(useReadability bool) *Extractor {
	return &Extractor{useReadability: useReadability}
}

// Extract converts raw bytes into ordered units. A payload with no readable
// text fails with an EmptyContentError.
func (e *Extractor) Extract(ctx context.Context, src core.Source) ([]core.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	label := src.Name
	if label == "" {
		label = src.URL
	}

	var (
		units []core.Unit
		err   error
	)
	switch ResolveFormat(src.MimeType, src.Name) {
	case FormatPDF:
		units, err = extractPDF(src.Data, label)
	case FormatText:
		units = []core.Unit{{Text: plainText(src.Data), PageIndex: 1, SourceLabel: label}}
	case FormatCSV:
		units, err = extractCSV(src.Data, label)
	case FormatDOCX, FormatOffice:
		units, err = e.extractOffice(src, label)
	case FormatHTML:
		var page *HTMLPage
		page, err = ParseHTML(src.URL, src.Data)
		if err == nil {
			units = []core.Unit{page.Unit(label)}
		}
	default:
		return nil, core.NewError(core.KindUnsupportedFormat, "cannot extract "+describe(src), nil)
	}
	if err != nil {
		return nil, err
	}

	units = nonEmpty(units)
	if len(units) == 0 {
		return nil, core.NewError(core.KindEmptyContent, "no text in "+describe(src), nil)
	}
	return units, nil
}

func nonEmpty(units []core.Unit) []core.Unit {
	out := units[:0]
	for _, u := range units {
		if strings.TrimSpace(u.Text) != "" {
			out = append(out, u)
		}
	}
	return out
}

func describe(src core.Source) string {
	name := src.Name
	if name == "" {
		name = src.URL
	}
	if src.MimeType != "" {
		return name + " (" + src.MimeType + ")"
	}
	return name
}
