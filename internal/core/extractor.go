package core

import "context"

// Unit is one extracted span of text (a PDF page, a whole text file, a web page).
type Unit struct {
	Text        string
	PageIndex   int
	SourceLabel string
}

// Source is a raw training payload handed to an extractor.
type Source struct {
	Name     string
	MimeType string
	URL      string
	Data     []byte
}

// DocumentExtractor turns a payload into ordered text units.
type DocumentExtractor interface {
	Extract(ctx context.Context, src Source) ([]Unit, error)
}
