package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

func seedBot(t *testing.T, c *MemoryClient, id string) {
	t.Helper()
	require.NoError(t, c.CreateBot(context.Background(), &models.Bot{ID: id, UserID: "u1", Name: id}))
}

func TestMemoryClientMissingRowsAreNotFound(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()

	_, err := c.GetBotByID(ctx, "nope")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	_, err = c.GetSourceDocument(ctx, "nope")
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.True(t, errors.Is(c.SaveWebsiteCrawl(ctx, &models.WebsiteCrawl{ID: "nope"}), core.ErrNotFound))
	assert.True(t, errors.Is(c.RecordBotMessage(ctx, "nope", time.Now()), core.ErrNotFound))
}

func TestMemoryClientRecomputeCountsCompletedSourcesOnly(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	seedBot(t, c, "b1")
	seedBot(t, c, "b2")

	require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: "d1", BotID: "b1", Status: models.DocumentCompleted, ProcessedChunkCount: 3}))
	require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: "d2", BotID: "b1", Status: models.DocumentError, ProcessedChunkCount: 2}))
	require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: "d3", BotID: "b2", Status: models.DocumentCompleted, ProcessedChunkCount: 9}))
	require.NoError(t, c.CreateWebsiteCrawl(ctx, &models.WebsiteCrawl{ID: "w1", BotID: "b1", Status: models.CrawlCompleted, ProcessedChunks: 4}))

	trained := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stats, err := c.RecomputeBotTrainingStats(ctx, "b1", trained)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 7, stats.TotalChunks)
	require.NotNil(t, stats.LastTrainingDate)
	assert.True(t, trained.Equal(*stats.LastTrainingDate))

	// zero time keeps the previous training date
	require.NoError(t, c.DeleteSourceDocument(ctx, "d1"))
	stats, err = c.RecomputeBotTrainingStats(ctx, "b1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 4, stats.TotalChunks)
	assert.True(t, trained.Equal(*stats.LastTrainingDate))

	bot, err := c.GetBotByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 4, bot.TotalChunks)
}

func TestMemoryClientRecordMessage(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	seedBot(t, c, "b1")

	at := time.Now()
	require.NoError(t, c.RecordBotMessage(ctx, "b1", at))
	require.NoError(t, c.RecordBotMessage(ctx, "b1", at))

	bot, err := c.GetBotByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, bot.MessageCount)
	require.NotNil(t, bot.LastActiveAt)
}

func TestMemoryClientDeleteByBot(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	for _, id := range []string{"d1", "d2"} {
		require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: id, BotID: "b1"}))
	}
	require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: "d3", BotID: "b2"}))

	n, err := c.DeleteSourceDocumentsByBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := c.ListSourceDocumentsByBot(ctx, "b2")
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestMemoryClientReturnsCopies(t *testing.T) {
	c := NewMemoryClient()
	ctx := context.Background()
	require.NoError(t, c.CreateSourceDocument(ctx, &models.SourceDocument{ID: "d1", BotID: "b1", Status: models.DocumentPending}))

	d, err := c.GetSourceDocument(ctx, "d1")
	require.NoError(t, err)
	d.Status = models.DocumentCompleted

	again, err := c.GetSourceDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DocumentPending, again.Status)
}
