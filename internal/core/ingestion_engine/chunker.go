package ingestion_engine

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

const (
	DefaultChunkSize    = 2048
	DefaultChunkOverlap = 400
)

// DefaultSeparators are tried coarsest first; the character split is the implicit last resort.
var DefaultSeparators = []string{"\n\n\n", "\n\n", "\n", ". ", "! ", "? ", ";", ":", " "}

// Chunker splits extracted units into bounded, overlapping chunks.
//
// Sizes are byte lengths of UTF-8 text. A chunk never exceeds the target size,
// never spans two units, and the next chunk of the same unit repeats at most
// the configured overlap of its predecessor.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

type ChunkerOption func(*Chunker)

func WithChunkSize(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.size = n
		}
	}
}

func WithOverlap(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

func WithSeparators(seps ...string) ChunkerOption {
	return func(c *Chunker) {
		if len(seps) > 0 {
			c.separators = seps
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap, separators: DefaultSeparators}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 2
	}
	return c
}

// Chunks lazily yields chunks for units in order. Positions are monotonic
// across all units. The sequence can be ranged over more than once.
func (c *Chunker) Chunks(units []core.Unit) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		pos := 0
		for _, u := range units {
			for _, sp := range c.spans(u.Text) {
				content := u.Text[sp.start:sp.end]
				ch := models.Chunk{
					Content:     content,
					Page:        u.PageIndex,
					Position:    pos,
					Overlap:     sp.overlap,
					CharCount:   utf8.RuneCountInString(content),
					TokenCount:  approxTokens(content),
					SourceLabel: u.SourceLabel,
					Status:      models.ChunkPending,
				}
				pos++
				if !yield(ch) {
					return
				}
			}
		}
	}
}

// Split collects Chunks into a slice.
func (c *Chunker) Split(units []core.Unit) []models.Chunk {
	return slices.Collect(c.Chunks(units))
}

type span struct {
	start, end int
	overlap    int
}

func (c *Chunker) spans(text string) []span {
	n := len(text)
	if n == 0 {
		return nil
	}

	var (
		out     []span
		start   int
		overlap int
	)
	for {
		if n-start <= c.size {
			return append(out, span{start: start, end: n, overlap: overlap})
		}
		end := c.cut(text, start)
		out = append(out, span{start: start, end: end, overlap: overlap})

		next := end - min(c.overlap, (end-start)/2)
		// begin the repeated tail at a word boundary when there is one
		if next < end {
			if i := strings.IndexAny(text[next:end], " \n\t"); i >= 0 && next+i+1 < end {
				next += i + 1
			}
		}
		for next < end && !utf8.RuneStart(text[next]) {
			next++
		}
		overlap = end - next
		start = next
	}
}

// cut returns the end of the chunk starting at start, which must not reach the end of text.
func (c *Chunker) cut(text string, start int) int {
	limit := start + c.size
	window := text[start:limit]
	minCut := c.size / 4

	for _, sep := range c.separators {
		if i := strings.LastIndex(window, sep); i >= 0 && i+len(sep) >= minCut {
			return start + i + len(sep)
		}
	}

	end := limit
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == start {
		return limit
	}
	return end
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
