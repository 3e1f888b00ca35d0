package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

// MemoryIndex is an in-process brute-force cosine index.
type MemoryIndex struct {
	mu      sync.RWMutex
	dim     int
	records map[string]models.VectorRecord
}

var _ core.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex(dim int) *MemoryIndex {
	return &MemoryIndex{dim: dim, records: make(map[string]models.VectorRecord)}
}

func (m *MemoryIndex) Dimensions() int { return m.dim }

func (m *MemoryIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Values) != m.dim {
			return fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", r.ID, len(r.Values), m.dim)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.QueryMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), m.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]core.QueryMatch, 0)
	for id, r := range m.records {
		if !r.Metadata.Matches(filter) {
			continue
		}
		matches = append(matches, core.QueryMatch{ID: id, Score: cosine(vector, r.Values), Metadata: r.Metadata})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

func (m *MemoryIndex) Count(ctx context.Context, filter core.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.records {
		if r.Metadata.Matches(filter) {
			n++
		}
	}
	return n, nil
}

// Get returns a stored record by id.
func (m *MemoryIndex) Get(id string) (models.VectorRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
