package llm

import (
	"context"
	"sync"

	"github.com/markdave123-py/botwise/internal/core"
)

// ModelBuilder creates a model instance for one settings tuple.
type ModelBuilder func(ctx context.Context, s core.ModelSettings) (core.LLMProvider, error)

// ModelCache builds each distinct model configuration once and reuses it.
// Entries are never evicted; the key space is bounded by bot settings.
type ModelCache struct {
	mu     sync.Mutex
	build  ModelBuilder
	models map[core.ModelSettings]core.LLMProvider
}

var _ core.ChatModelFactory = (*ModelCache)(nil)

func NewModelCache(build ModelBuilder) *ModelCache {
	return &ModelCache{build: build, models: make(map[core.ModelSettings]core.LLMProvider)}
}

func (c *ModelCache) ChatModel(ctx context.Context, s core.ModelSettings) (core.LLMProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[s]; ok {
		return m, nil
	}
	m, err := c.build(ctx, s)
	if err != nil {
		return nil, err
	}
	c.models[s] = m
	return m, nil
}

// Len reports how many model instances are cached.
func (c *ModelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.models)
}
