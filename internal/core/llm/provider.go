package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/botwise/internal/config"
	"github.com/markdave123-py/botwise/internal/core"
)

// Providers bundles the configured embedding backend and the chat model cache.
type Providers struct {
	Embeddings *EmbeddingClient
	Models     *ModelCache
	closers    []func() error
}

func (p *Providers) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func NewProvidersFromConfig(ctx context.Context, cfg *config.Config) (*Providers, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	var (
		embedder core.Embedder
		build    ModelBuilder
		closers  []func() error
	)
	switch cfg.AIProvider {
	case "gemini":
		ge, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		gc, err := NewGeminiClient(ctx, cfg.AIAPIKey)
		if err != nil {
			_ = ge.Close()
			return nil, fmt.Errorf("couldn't initialize the chat model, %w", err)
		}
		embedder, build = ge, gc.Model
		closers = append(closers, ge.Close, gc.Close)

	case "openai":
		oe, err := NewOpenAIEmbedder(ctx, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbedDim, cfg.AITimeout)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		oc, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AITimeout)
		if err != nil {
			return nil, fmt.Errorf("couldn't initialize the chat model, %w", err)
		}
		embedder, build = oe, oc.Model

	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER: %s", cfg.AIProvider)
	}

	return &Providers{
		Embeddings: NewEmbeddingClient(embedder, cfg.EmbedBatchSize, cfg.EmbedDim),
		Models:     NewModelCache(build),
		closers:    closers,
	}, nil
}
