// Package llmtest provides deterministic stand-ins for the model backends,
// for use in tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/markdave123-py/botwise/internal/core"
)

// HashEmbedder hashes words into buckets of a normalized vector. Texts sharing
// words score close under cosine similarity.
type HashEmbedder struct {
	dim int
}

var _ core.Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?;:\"'()")))
		v[h.Sum32()%uint32(e.dim)] += 1
	}
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum == 0 {
		v[0] = 1
		return v
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
