package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/botwise/internal/core"
)

const DefaultEmbedBatchSize = 20

// EmbeddingClient calls a provider in sequential batches and normalizes every
// failure into an EmbeddingServiceError.
type EmbeddingClient struct {
	provider  core.Embedder
	batchSize int
	dim       int
}

var _ core.EmbeddingService = (*EmbeddingClient)(nil)

// NewEmbeddingClient wraps provider. dim <= 0 disables the dimension check.
func NewEmbeddingClient(provider core.Embedder, batchSize, dim int) *EmbeddingClient {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &EmbeddingClient{provider: provider, batchSize: batchSize, dim: dim}
}

func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.provider.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, core.NewError(core.KindEmbeddingService, fmt.Sprintf("batch %d-%d", start, end), err)
		}
		if len(vecs) != end-start {
			return nil, core.NewError(core.KindEmbeddingService,
				fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), end-start), nil)
		}
		for i, v := range vecs {
			if c.dim > 0 && len(v) != c.dim {
				return nil, core.NewError(core.KindEmbeddingService,
					fmt.Sprintf("vector %d has dimension %d, want %d", start+i, len(v), c.dim), nil)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}
