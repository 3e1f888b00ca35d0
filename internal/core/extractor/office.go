package extractor

import (
	"bytes"
	"fmt"
	"mime"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/botwise/internal/core"
)

// extractOffice uses docconv for word processing formats. The whole document
// becomes a single unit since docconv does not report page boundaries.
func (e *Extractor) extractOffice(src core.Source, label string) ([]core.Unit, error) {
	contentType := docconv.MimeTypeByExtension(src.Name)
	if mt, _, err := mime.ParseMediaType(src.MimeType); err == nil && ResolveFormat(mt, "") != FormatUnknown {
		contentType = mt
	}

	res, err := docconv.Convert(bytes.NewReader(src.Data), contentType, e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", contentType, err)
	}
	return []core.Unit{{Text: normalizeLines(res.Body), PageIndex: 1, SourceLabel: label}}, nil
}
