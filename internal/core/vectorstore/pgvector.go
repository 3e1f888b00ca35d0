package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

// PgVectorIndex stores vectors in Postgres with the pgvector extension.
// Metadata lives in a JSONB column so filters are plain containment checks.
type PgVectorIndex struct {
	db  *sql.DB
	dim int
}

var _ core.VectorIndex = (*PgVectorIndex)(nil)

func NewPgVectorIndex(ctx context.Context, db *sql.DB, dim int) (*PgVectorIndex, error) {
	if db == nil {
		return nil, fmt.Errorf("pgvector: nil db")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("pgvector: invalid dim %d", dim)
	}
	idx := &PgVectorIndex{db: db, dim: dim}
	if err := idx.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *PgVectorIndex) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vector_records (
			id          TEXT PRIMARY KEY,
			chatbot_id  TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			metadata    JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.dim),
		`CREATE INDEX IF NOT EXISTS vector_records_chatbot_idx ON vector_records (chatbot_id)`,
		`CREATE INDEX IF NOT EXISTS vector_records_metadata_idx ON vector_records USING GIN (metadata jsonb_path_ops)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Dimensions() int { return p.dim }

// Upsert writes one batch in a single transaction.
func (p *PgVectorIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO vector_records (id, chatbot_id, embedding, metadata, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (id) DO UPDATE
		SET chatbot_id = EXCLUDED.chatbot_id,
		    embedding  = EXCLUDED.embedding,
		    metadata   = EXCLUDED.metadata,
		    updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		if len(r.Values) != p.dim {
			_ = tx.Rollback()
			return fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", r.ID, len(r.Values), p.dim)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Metadata.ChatbotID, pgvector.NewVector(r.Values), string(meta)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query orders by cosine distance; the score is cosine similarity.
func (p *PgVectorIndex) Query(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.QueryMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	f, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT id, metadata, 1 - (embedding <=> $1) AS score
		FROM vector_records
		WHERE metadata @> $2::jsonb
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := p.db.QueryContext(ctx, q, pgvector.NewVector(vector), f, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.QueryMatch
	for rows.Next() {
		var (
			m     core.QueryMatch
			meta  []byte
			score sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &meta, &score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", m.ID, err)
		}
		m.Score = float32(score.Float64)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PgVectorIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM vector_records WHERE id = ANY($1)`, ids)
	return err
}

func (p *PgVectorIndex) Count(ctx context.Context, filter core.Filter) (int, error) {
	f, err := filterJSON(filter)
	if err != nil {
		return 0, err
	}
	var n int
	err = p.db.QueryRowContext(ctx, `SELECT count(*) FROM vector_records WHERE metadata @> $1::jsonb`, f).Scan(&n)
	return n, err
}

func filterJSON(filter core.Filter) (string, error) {
	if len(filter) == 0 {
		return "{}", nil
	}
	doc := make(map[string]any, len(filter))
	for k, v := range filter {
		if n, ok := models.NumericMetaValue(k, v); ok {
			doc[k] = n
			continue
		}
		doc[k] = v
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
