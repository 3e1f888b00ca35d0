package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

func record(id, bot string, vec ...float32) models.VectorRecord {
	return models.VectorRecord{
		ID:     id,
		Values: vec,
		Metadata: models.VectorMetadata{
			ChatbotID:  bot,
			SourceType: models.SourceTypeDocument,
			Source:     "faq.txt",
			DocumentID: "doc-" + bot,
			Text:       "text of " + id,
		},
	}
}

// spyIndex wraps a MemoryIndex and records batch sizes, optionally failing one batch.
type spyIndex struct {
	*MemoryIndex
	batches   []int
	failBatch int
	extra     []core.QueryMatch
}

func (s *spyIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	s.batches = append(s.batches, len(records))
	if s.failBatch > 0 && len(s.batches) == s.failBatch {
		return errors.New("index unavailable")
	}
	return s.MemoryIndex.Upsert(ctx, records)
}

func (s *spyIndex) Query(ctx context.Context, v []float32, f core.Filter, k int) ([]core.QueryMatch, error) {
	m, err := s.MemoryIndex.Query(ctx, v, f, k)
	return append(m, s.extra...), err
}

func TestUpsertBatchesOfHundred(t *testing.T) {
	spy := &spyIndex{MemoryIndex: NewMemoryIndex(2)}
	c := NewClient(spy, WithBatchDelay(time.Millisecond))

	recs := make([]models.VectorRecord, 250)
	for i := range recs {
		recs[i] = record(fmt.Sprintf("r%d", i), "bot-1", 1, float32(i))
	}
	require.NoError(t, c.Upsert(context.Background(), recs))
	assert.Equal(t, []int{100, 100, 50}, spy.batches)

	stats, err := c.Stats(context.Background(), core.Filter{models.MetaChatbotID: "bot-1"})
	require.NoError(t, err)
	assert.Equal(t, 250, stats.VectorCount)
	assert.Equal(t, 2, stats.Dimensions)
}

func TestUpsertFailureKeepsEarlierBatches(t *testing.T) {
	spy := &spyIndex{MemoryIndex: NewMemoryIndex(2), failBatch: 2}
	c := NewClient(spy, WithBatchDelay(0))

	recs := make([]models.VectorRecord, 250)
	for i := range recs {
		recs[i] = record(fmt.Sprintf("r%d", i), "bot-1", 1, 1)
	}
	err := c.Upsert(context.Background(), recs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrVectorStore))
	assert.Equal(t, []int{100, 100}, spy.batches)

	n, err := spy.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestUpsertIsIdempotentByID(t *testing.T) {
	c := NewClient(NewMemoryIndex(2), WithBatchDelay(0))
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []models.VectorRecord{record("same", "bot-1", 1, 0)}))
	require.NoError(t, c.Upsert(ctx, []models.VectorRecord{record("same", "bot-1", 0, 1)}))

	stats, err := c.Stats(ctx, core.Filter{models.MetaChatbotID: "bot-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorCount)
}

func TestQueryIsTenantScoped(t *testing.T) {
	idx := NewMemoryIndex(2)
	c := NewClient(idx, WithBatchDelay(0))
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, []models.VectorRecord{
		record("a1", "bot-a", 1, 0),
		record("a2", "bot-a", 0.9, 0.1),
		record("b1", "bot-b", 1, 0),
	}))

	matches, err := c.Query(ctx, []float32{1, 0}, core.Filter{models.MetaChatbotID: "bot-a"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a1", matches[0].ID)
	for _, m := range matches {
		assert.Equal(t, "bot-a", m.Metadata.ChatbotID)
	}

	_, err = c.Query(ctx, []float32{1, 0}, core.Filter{}, 10)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	none, err := c.Query(ctx, []float32{1, 0}, core.Filter{models.MetaChatbotID: "bot-a"}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryDropsForeignTenantRecords(t *testing.T) {
	spy := &spyIndex{
		MemoryIndex: NewMemoryIndex(2),
		extra:       []core.QueryMatch{{ID: "leak", Score: 0.99, Metadata: models.VectorMetadata{ChatbotID: "bot-b"}}},
	}
	c := NewClient(spy, WithBatchDelay(0))
	require.NoError(t, c.Upsert(context.Background(), []models.VectorRecord{record("a1", "bot-a", 1, 0)}))

	matches, err := c.Query(context.Background(), []float32{1, 0}, core.Filter{models.MetaChatbotID: "bot-a"}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a1", matches[0].ID)
}

func TestDeleteByFilter(t *testing.T) {
	idx := NewMemoryIndex(2)
	c := NewClient(idx, WithBatchDelay(0))
	ctx := context.Background()

	doc1 := record("d1", "bot-a", 1, 0)
	doc1.Metadata.DocumentID = "doc-1"
	doc2 := record("d2", "bot-a", 0, 1)
	doc2.Metadata.DocumentID = "doc-2"
	other := record("o1", "bot-b", 1, 1)
	other.Metadata.DocumentID = "doc-1"
	require.NoError(t, c.Upsert(ctx, []models.VectorRecord{doc1, doc2, other}))

	n, err := c.DeleteByFilter(ctx, core.Filter{models.MetaChatbotID: "bot-a", models.MetaDocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := idx.Get("d1")
	assert.False(t, ok)
	_, ok = idx.Get("d2")
	assert.True(t, ok)
	_, ok = idx.Get("o1")
	assert.True(t, ok)
}

func TestDeleteByFilterRespectsScanLimit(t *testing.T) {
	idx := NewMemoryIndex(2)
	c := NewClient(idx, WithBatchDelay(0), WithDeleteScanLimit(3))
	ctx := context.Background()
	recs := make([]models.VectorRecord, 5)
	for i := range recs {
		recs[i] = record(fmt.Sprintf("r%d", i), "bot-a", 1, float32(i))
	}
	require.NoError(t, c.Upsert(ctx, recs))

	n, err := c.DeleteByFilter(ctx, core.Filter{models.MetaChatbotID: "bot-a"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	left, err := idx.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, left)
}

func TestMilvusExpr(t *testing.T) {
	expr := milvusExpr(core.Filter{
		models.MetaChatbotID:  "bot-1",
		models.MetaDocumentID: "doc-9",
	})
	assert.Equal(t, `chatbot_id == "bot-1" && metadata["documentId"] == "doc-9"`, expr)
	assert.Equal(t, "", milvusExpr(nil))

	expr = milvusExpr(core.Filter{models.MetaDocumentID: "doc-9", models.MetaPage: "3"})
	assert.Equal(t, `metadata["documentId"] == "doc-9" && metadata["page"] == 3`, expr)
}

func TestFilterJSON(t *testing.T) {
	s, err := filterJSON(core.Filter{models.MetaChatbotID: "bot-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"chatbotId":"bot-1"}`, s)

	s, err = filterJSON(core.Filter{models.MetaPage: "2", models.MetaPosition: "0"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2,"position":0}`, s)

	s, err = filterJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}
