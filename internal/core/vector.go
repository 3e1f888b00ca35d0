package core

import (
	"context"

	"github.com/markdave123-py/botwise/internal/models"
)

// Filter is an exact-match AND over metadata keys.
type Filter map[string]string

type QueryMatch struct {
	ID       string
	Score    float32
	Metadata models.VectorMetadata
}

type IndexStats struct {
	VectorCount int `json:"vectorCount"`
	Dimensions  int `json:"dimensions"`
}

// VectorIndex is the raw backend (pgvector, Milvus, memory).
type VectorIndex interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]QueryMatch, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	Count(ctx context.Context, filter Filter) (int, error)
	Dimensions() int
}

// VectorStore is what the pipeline and the composer talk to.
type VectorStore interface {
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]QueryMatch, error)
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)
	Stats(ctx context.Context, filter Filter) (IndexStats, error)
}
