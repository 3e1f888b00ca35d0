package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

const (
	DefaultUpsertBatchSize = 100
	DefaultBatchDelay      = 100 * time.Millisecond
	DefaultDeleteScanLimit = 10000
	deleteBatchSize        = 1000
)

// Client is the tenant-aware facade over a VectorIndex.
type Client struct {
	index           core.VectorIndex
	batchSize       int
	limiter         *rate.Limiter
	deleteScanLimit int
	logger          *zap.Logger
}

var _ core.VectorStore = (*Client)(nil)

type ClientOption func(*Client)

func WithUpsertBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBatchDelay spaces consecutive upsert batches by at least d.
func WithBatchDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

func WithDeleteScanLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.deleteScanLimit = n
		}
	}
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(index core.VectorIndex, opts ...ClientOption) *Client {
	c := &Client{
		index:           index,
		batchSize:       DefaultUpsertBatchSize,
		limiter:         rate.NewLimiter(rate.Every(DefaultBatchDelay), 1),
		deleteScanLimit: DefaultDeleteScanLimit,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert writes records in batches. The first failed batch stops the run;
// batches already written stay in the index.
func (c *Client) Upsert(ctx context.Context, records []models.VectorRecord) error {
	for start := 0; start < len(records); start += c.batchSize {
		if start > 0 {
			if err := c.limiter.Wait(ctx); err != nil {
				return core.NewError(core.KindVectorStore, "upsert interrupted", err)
			}
		}
		end := min(start+c.batchSize, len(records))
		if err := c.index.Upsert(ctx, records[start:end]); err != nil {
			return core.NewError(core.KindVectorStore, fmt.Sprintf("upsert batch %d-%d", start, end), err)
		}
		c.logger.Debug("vector batch upserted", zap.Int("from", start), zap.Int("to", end))
	}
	return nil
}

// Query runs a similarity search scoped to one bot. The filter must name the bot.
func (c *Client) Query(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.QueryMatch, error) {
	botID := filter[models.MetaChatbotID]
	if botID == "" {
		return nil, core.NewError(core.KindInvalidInput, "vector query without chatbotId filter", nil)
	}
	if topK <= 0 {
		return nil, nil
	}

	matches, err := c.index.Query(ctx, vector, filter, topK)
	if err != nil {
		return nil, core.NewError(core.KindVectorStore, "query", err)
	}

	out := matches[:0]
	for _, m := range matches {
		if m.Metadata.ChatbotID != botID {
			c.logger.Error("tenant isolation violation",
				zap.Error(core.ErrTenantIsolation),
				zap.String("expected_bot", botID),
				zap.String("got_bot", m.Metadata.ChatbotID),
				zap.String("vector_id", m.ID))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteByFilter resolves ids with a wide query and deletes them. At most the
// scan limit is removed per call, and records written between the two steps
// survive.
func (c *Client) DeleteByFilter(ctx context.Context, filter core.Filter) (int, error) {
	if filter[models.MetaChatbotID] == "" {
		return 0, core.NewError(core.KindInvalidInput, "delete without chatbotId filter", nil)
	}

	zero := make([]float32, c.index.Dimensions())
	matches, err := c.index.Query(ctx, zero, filter, c.deleteScanLimit)
	if err != nil {
		return 0, core.NewError(core.KindVectorStore, "resolve ids for delete", err)
	}
	if len(matches) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	deleted := 0
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		if err := c.index.DeleteByIDs(ctx, ids[start:end]); err != nil {
			return deleted, core.NewError(core.KindVectorStore, "delete by ids", err)
		}
		deleted = end
	}
	if len(matches) == c.deleteScanLimit {
		c.logger.Warn("delete hit scan limit, some vectors may remain",
			zap.Int("limit", c.deleteScanLimit), zap.Any("filter", filter))
	}
	return deleted, nil
}

func (c *Client) Stats(ctx context.Context, filter core.Filter) (core.IndexStats, error) {
	n, err := c.index.Count(ctx, filter)
	if err != nil {
		return core.IndexStats{}, core.NewError(core.KindVectorStore, "count", err)
	}
	return core.IndexStats{VectorCount: n, Dimensions: c.index.Dimensions()}, nil
}
