package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

// MemoryClient keeps every record in process. Used for STORE_DRIVER=memory and tests.
type MemoryClient struct {
	mu     sync.RWMutex
	bots   map[string]models.Bot
	docs   map[string]models.SourceDocument
	crawls map[string]models.WebsiteCrawl
	now    func() time.Time
}

var _ core.DbClient = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		bots:   make(map[string]models.Bot),
		docs:   make(map[string]models.SourceDocument),
		crawls: make(map[string]models.WebsiteCrawl),
		now:    time.Now,
	}
}

func (c *MemoryClient) Close() error { return nil }

func (c *MemoryClient) CreateBot(_ context.Context, bot *models.Bot) error {
	if bot == nil {
		return errors.New("nil bot")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.bots[bot.ID]; ok {
		return core.NewError(core.KindInvalidInput, "bot "+bot.ID+" already exists", nil)
	}
	b := *bot
	if b.CreatedAt.IsZero() {
		b.CreatedAt = c.now()
	}
	b.UpdatedAt = b.CreatedAt
	c.bots[b.ID] = b
	return nil
}

func (c *MemoryClient) GetBotByID(_ context.Context, id string) (*models.Bot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bots[id]
	if !ok {
		return nil, notFound("bot", id)
	}
	return &b, nil
}

func (c *MemoryClient) RecordBotMessage(_ context.Context, botID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bots[botID]
	if !ok {
		return notFound("bot", botID)
	}
	b.MessageCount++
	b.LastActiveAt = &at
	b.UpdatedAt = c.now()
	c.bots[botID] = b
	return nil
}

func (c *MemoryClient) RecomputeBotTrainingStats(_ context.Context, botID string, trainedAt time.Time) (models.BotStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bots[botID]
	if !ok {
		return models.BotStats{}, notFound("bot", botID)
	}

	var docs, chunks int
	for _, d := range c.docs {
		if d.BotID == botID && d.Status == models.DocumentCompleted {
			docs++
			chunks += d.ProcessedChunkCount
		}
	}
	for _, w := range c.crawls {
		if w.BotID == botID && w.Status == models.CrawlCompleted {
			docs++
			chunks += w.ProcessedChunks
		}
	}
	b.TotalDocuments = docs
	b.TotalChunks = chunks
	if !trainedAt.IsZero() {
		t := trainedAt
		b.LastTrainingDate = &t
	}
	b.UpdatedAt = c.now()
	c.bots[botID] = b

	return models.BotStats{
		TotalDocuments:   b.TotalDocuments,
		TotalChunks:      b.TotalChunks,
		LastTrainingDate: b.LastTrainingDate,
	}, nil
}

func (c *MemoryClient) CreateSourceDocument(_ context.Context, doc *models.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := *doc
	if d.CreatedAt.IsZero() {
		d.CreatedAt = c.now()
	}
	d.UpdatedAt = d.CreatedAt
	c.docs[d.ID] = d
	return nil
}

func (c *MemoryClient) GetSourceDocument(_ context.Context, id string) (*models.SourceDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, notFound("document", id)
	}
	return &d, nil
}

func (c *MemoryClient) ListSourceDocumentsByBot(_ context.Context, botID string) ([]models.SourceDocument, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.SourceDocument
	for _, d := range c.docs {
		if d.BotID == botID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *MemoryClient) SaveSourceDocument(_ context.Context, doc *models.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[doc.ID]; !ok {
		return notFound("document", doc.ID)
	}
	d := *doc
	d.UpdatedAt = c.now()
	c.docs[d.ID] = d
	return nil
}

func (c *MemoryClient) DeleteSourceDocument(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[id]; !ok {
		return notFound("document", id)
	}
	delete(c.docs, id)
	return nil
}

func (c *MemoryClient) DeleteSourceDocumentsByBot(_ context.Context, botID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, d := range c.docs {
		if d.BotID == botID {
			delete(c.docs, id)
			n++
		}
	}
	return n, nil
}

func (c *MemoryClient) CreateWebsiteCrawl(_ context.Context, crawl *models.WebsiteCrawl) error {
	if crawl == nil {
		return errors.New("nil crawl")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	w := *crawl
	if w.CreatedAt.IsZero() {
		w.CreatedAt = c.now()
	}
	w.UpdatedAt = w.CreatedAt
	c.crawls[w.ID] = w
	return nil
}

func (c *MemoryClient) GetWebsiteCrawl(_ context.Context, id string) (*models.WebsiteCrawl, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.crawls[id]
	if !ok {
		return nil, notFound("website crawl", id)
	}
	return &w, nil
}

func (c *MemoryClient) ListWebsiteCrawlsByBot(_ context.Context, botID string) ([]models.WebsiteCrawl, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.WebsiteCrawl
	for _, w := range c.crawls {
		if w.BotID == botID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (c *MemoryClient) SaveWebsiteCrawl(_ context.Context, crawl *models.WebsiteCrawl) error {
	if crawl == nil {
		return errors.New("nil crawl")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.crawls[crawl.ID]; !ok {
		return notFound("website crawl", crawl.ID)
	}
	w := *crawl
	w.UpdatedAt = c.now()
	c.crawls[w.ID] = w
	return nil
}

func (c *MemoryClient) DeleteWebsiteCrawl(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.crawls[id]; !ok {
		return notFound("website crawl", id)
	}
	delete(c.crawls, id)
	return nil
}

func (c *MemoryClient) DeleteWebsiteCrawlsByBot(_ context.Context, botID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, w := range c.crawls {
		if w.BotID == botID {
			delete(c.crawls, id)
			n++
		}
	}
	return n, nil
}
