package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/markdave123-py/botwise/internal/core"
)

// OpenAIEmbedder adapts an eino embedder to core.Embedder.
type OpenAIEmbedder struct {
	em embedding.Embedder
}

var _ core.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(ctx context.Context, apiKey, baseURL, modelName string, dim int, timeout time.Duration) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("openai embedding missing apiKey/model")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := &openaiEmbed.EmbeddingConfig{
		APIKey:  apiKey,
		Model:   modelName,
		BaseURL: strings.TrimSpace(baseURL),
		Timeout: timeout,
	}
	if dim > 0 {
		localDim := dim
		cfg.Dimensions = &localDim
	}
	em, err := openaiEmbed.NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{em: em}, nil
}

func (o *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := o.em.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		f := make([]float32, len(v))
		for j, x := range v {
			f[j] = float32(x)
		}
		out[i] = f
	}
	return out, nil
}
