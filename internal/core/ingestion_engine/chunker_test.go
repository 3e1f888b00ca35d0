package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

func rebuild(chunks []models.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		b.WriteString(ch.Content[ch.Overlap:])
	}
	return b.String()
}

func TestChunkerFiveThousandCharsYieldsThreeChunks(t *testing.T) {
	for name, text := range map[string]string{
		"words":         strings.Repeat("abcd ", 1000),
		"no separators": strings.Repeat("x", 5000),
	} {
		t.Run(name, func(t *testing.T) {
			require.Len(t, text, 5000)
			chunks := NewChunker().Split([]core.Unit{{Text: text, PageIndex: 1}})
			require.Len(t, chunks, 3)
			for i, ch := range chunks {
				assert.LessOrEqual(t, len(ch.Content), DefaultChunkSize)
				assert.Equal(t, i, ch.Position)
				assert.LessOrEqual(t, ch.Overlap, DefaultChunkOverlap)
			}
			assert.Zero(t, chunks[0].Overlap)
			assert.Equal(t, text, rebuild(chunks))
		})
	}
}

func TestChunkerOverlapRepeatsPreviousTail(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	chunks := NewChunker(WithChunkSize(500), WithOverlap(100)).Split([]core.Unit{{Text: text}})
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.Positive(t, cur.Overlap)
		assert.True(t, strings.HasSuffix(prev.Content, cur.Content[:cur.Overlap]))
		assert.LessOrEqual(t, len(cur.Content), 500)
	}
	assert.Equal(t, text, rebuild(chunks))
}

func TestChunkerPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 70) // 350 bytes
	text := para + "\n\n" + para + "\n\n" + para
	chunks := NewChunker(WithChunkSize(800), WithOverlap(50)).Split([]core.Unit{{Text: text}})
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "\n\n"))
}

func TestChunkerShortUnitSingleChunk(t *testing.T) {
	chunks := NewChunker().Split([]core.Unit{{Text: "tiny", PageIndex: 4, SourceLabel: "a.pdf p.4"}})
	require.Len(t, chunks, 1)
	assert.Equal(t, "tiny", chunks[0].Content)
	assert.Zero(t, chunks[0].Overlap)
	assert.Equal(t, 4, chunks[0].Page)
	assert.Equal(t, "a.pdf p.4", chunks[0].SourceLabel)
	assert.Equal(t, 1, chunks[0].TokenCount)
	assert.Equal(t, models.ChunkPending, chunks[0].Status)
}

func TestChunkerNeverSpansUnits(t *testing.T) {
	units := []core.Unit{
		{Text: strings.Repeat("a", 300), PageIndex: 1},
		{Text: strings.Repeat("b", 300), PageIndex: 2},
	}
	chunks := NewChunker(WithChunkSize(200), WithOverlap(20)).Split(units)

	lastPos := -1
	for _, ch := range chunks {
		assert.Greater(t, ch.Position, lastPos)
		lastPos = ch.Position
		switch ch.Page {
		case 1:
			assert.NotContains(t, ch.Content, "b")
		case 2:
			assert.NotContains(t, ch.Content, "a")
		}
	}
	var p1, p2 []models.Chunk
	for _, ch := range chunks {
		if ch.Page == 1 {
			p1 = append(p1, ch)
		} else {
			p2 = append(p2, ch)
		}
	}
	assert.Zero(t, p2[0].Overlap)
	assert.Equal(t, units[0].Text, rebuild(p1))
	assert.Equal(t, units[1].Text, rebuild(p2))
}

func TestChunkerKeepsRunesIntact(t *testing.T) {
	text := strings.Repeat("é", 1000) // 2000 bytes, no separators
	chunks := NewChunker(WithChunkSize(301), WithOverlap(31)).Split([]core.Unit{{Text: text}})
	for _, ch := range chunks {
		assert.True(t, strings.Trim(ch.Content, "é") == "", "chunk split a rune")
	}
	assert.Equal(t, text, rebuild(chunks))
}

func TestChunksIsRestartable(t *testing.T) {
	c := NewChunker(WithChunkSize(100), WithOverlap(10))
	seq := c.Chunks([]core.Unit{{Text: strings.Repeat("lorem ipsum ", 50)}})

	var first, second int
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, first, second)
	assert.Positive(t, first)
}

func TestDedupeKeepsFirstOccurrence(t *testing.T) {
	in := []models.Chunk{{Content: "a", Position: 0}, {Content: "b", Position: 1}, {Content: "a", Position: 2}}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Content)
	assert.Equal(t, 0, out[0].Position)
	assert.Equal(t, "b", out[1].Content)
}

func TestVectorIDDeterministicPerTenant(t *testing.T) {
	a := VectorID("same text", "bot-1")
	assert.Equal(t, a, VectorID("same text", "bot-1"))
	assert.NotEqual(t, a, VectorID("same text", "bot-2"))
	assert.NotEqual(t, a, VectorID("other text", "bot-1"))
	assert.Len(t, a, 64)
}
