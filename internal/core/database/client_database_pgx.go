package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/config"
	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/models"
)

type DatabaseClient struct {
	db     *sql.DB
	schema SchemaState
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	schema, err := Migrate(ctx, db, log)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DatabaseClient{db: db, schema: schema}, nil
}

// Schema reports the schema state reached at startup.
func (c *DatabaseClient) Schema() SchemaState { return c.schema }

// DB exposes the pool so the pgvector index can share it.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func notFound(what, id string) error {
	return core.NewError(core.KindNotFound, fmt.Sprintf("%s %s not found", what, id), nil)
}

// Bots

func (c *DatabaseClient) CreateBot(ctx context.Context, bot *models.Bot) error {
	if bot == nil {
		return errors.New("nil bot")
	}
	settings, err := json.Marshal(bot.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const q = `
		INSERT INTO bots (id, user_id, name, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, COALESCE($5, now()), COALESCE($5, now()))
	`
	_, err = c.db.ExecContext(ctx, q, bot.ID, bot.UserID, bot.Name, string(settings), nullTime(&bot.CreatedAt))
	return err
}

func (c *DatabaseClient) GetBotByID(ctx context.Context, id string) (*models.Bot, error) {
	const q = `
		SELECT id, user_id, name, settings, total_documents, total_chunks, last_training_date,
		       message_count, last_active_at, created_at, updated_at
		FROM bots WHERE id = $1
	`
	var (
		b             models.Bot
		settings      []byte
		trained, seen sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.Name, &settings, &b.TotalDocuments, &b.TotalChunks, &trained,
		&b.MessageCount, &seen, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("bot", id)
	}
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &b.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for bot %s: %w", id, err)
		}
	}
	b.LastTrainingDate = timePtr(trained)
	b.LastActiveAt = timePtr(seen)
	return &b, nil
}

func (c *DatabaseClient) RecordBotMessage(ctx context.Context, botID string, at time.Time) error {
	const q = `
		UPDATE bots
		SET message_count = message_count + 1, last_active_at = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, botID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("bot", botID)
	}
	return nil
}

// RecomputeBotTrainingStats derives the bot counters from its completed sources.
// A zero trainedAt keeps the previous training date.
func (c *DatabaseClient) RecomputeBotTrainingStats(ctx context.Context, botID string, trainedAt time.Time) (models.BotStats, error) {
	const q = `
		UPDATE bots SET
			total_documents =
				(SELECT count(*) FROM source_documents WHERE bot_id = $1 AND status = 'completed') +
				(SELECT count(*) FROM website_crawls WHERE bot_id = $1 AND status = 'completed'),
			total_chunks =
				COALESCE((SELECT sum(processed_chunk_count) FROM source_documents WHERE bot_id = $1 AND status = 'completed'), 0) +
				COALESCE((SELECT sum(processed_chunks) FROM website_crawls WHERE bot_id = $1 AND status = 'completed'), 0),
			last_training_date = COALESCE($2, last_training_date),
			updated_at = now()
		WHERE id = $1
		RETURNING total_documents, total_chunks, last_training_date
	`
	var (
		stats   models.BotStats
		trained sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, q, botID, nullTime(&trainedAt)).Scan(&stats.TotalDocuments, &stats.TotalChunks, &trained)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, notFound("bot", botID)
	}
	if err != nil {
		return stats, err
	}
	stats.LastTrainingDate = timePtr(trained)
	return stats, nil
}

// Source documents

const documentColumns = `id, bot_id, original_name, mime_type, size, storage_url, status, error,
	chunk_count, processed_chunk_count, processing_start_time, processing_end_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*models.SourceDocument, error) {
	var (
		d          models.SourceDocument
		start, end sql.NullTime
	)
	if err := r.Scan(
		&d.ID, &d.BotID, &d.OriginalName, &d.MimeType, &d.Size, &d.StorageURL, &d.Status, &d.Error,
		&d.ChunkCount, &d.ProcessedChunkCount, &start, &end, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.ProcessingStartTime = timePtr(start)
	d.ProcessingEndTime = timePtr(end)
	return &d, nil
}

func (c *DatabaseClient) CreateSourceDocument(ctx context.Context, doc *models.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO source_documents
			(id, bot_id, original_name, mime_type, size, storage_url, status, error, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($9, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.BotID, doc.OriginalName, doc.MimeType, doc.Size, doc.StorageURL, doc.Status, doc.Error, nullTime(&doc.CreatedAt))
	return err
}

func (c *DatabaseClient) GetSourceDocument(ctx context.Context, id string) (*models.SourceDocument, error) {
	q := `SELECT ` + documentColumns + ` FROM source_documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("document", id)
	}
	return d, err
}

func (c *DatabaseClient) ListSourceDocumentsByBot(ctx context.Context, botID string) ([]models.SourceDocument, error) {
	q := `SELECT ` + documentColumns + ` FROM source_documents WHERE bot_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SourceDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SaveSourceDocument(ctx context.Context, doc *models.SourceDocument) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		UPDATE source_documents SET
			status = $2, error = $3, chunk_count = $4, processed_chunk_count = $5,
			processing_start_time = $6, processing_end_time = $7, storage_url = $8, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.Status, doc.Error, doc.ChunkCount, doc.ProcessedChunkCount,
		nullTime(doc.ProcessingStartTime), nullTime(doc.ProcessingEndTime), doc.StorageURL)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("document", doc.ID)
	}
	return nil
}

func (c *DatabaseClient) DeleteSourceDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM source_documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("document", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteSourceDocumentsByBot(ctx context.Context, botID string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM source_documents WHERE bot_id = $1`, botID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Website crawls

const crawlColumns = `id, bot_id, url, max_depth, status, pages_processed, total_chunks, processed_chunks,
	error, started_at, completed_at, created_at, updated_at`

func scanCrawl(r rowScanner) (*models.WebsiteCrawl, error) {
	var (
		w          models.WebsiteCrawl
		start, end sql.NullTime
	)
	if err := r.Scan(
		&w.ID, &w.BotID, &w.URL, &w.MaxDepth, &w.Status, &w.PagesProcessed, &w.TotalChunks, &w.ProcessedChunks,
		&w.Error, &start, &end, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	w.StartedAt = timePtr(start)
	w.CompletedAt = timePtr(end)
	return &w, nil
}

func (c *DatabaseClient) CreateWebsiteCrawl(ctx context.Context, crawl *models.WebsiteCrawl) error {
	if crawl == nil {
		return errors.New("nil crawl")
	}
	const q = `
		INSERT INTO website_crawls (id, bot_id, url, max_depth, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		crawl.ID, crawl.BotID, crawl.URL, crawl.MaxDepth, crawl.Status, crawl.Error, nullTime(&crawl.CreatedAt))
	return err
}

func (c *DatabaseClient) GetWebsiteCrawl(ctx context.Context, id string) (*models.WebsiteCrawl, error) {
	q := `SELECT ` + crawlColumns + ` FROM website_crawls WHERE id = $1`
	w, err := scanCrawl(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("website crawl", id)
	}
	return w, err
}

func (c *DatabaseClient) ListWebsiteCrawlsByBot(ctx context.Context, botID string) ([]models.WebsiteCrawl, error) {
	q := `SELECT ` + crawlColumns + ` FROM website_crawls WHERE bot_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WebsiteCrawl
	for rows.Next() {
		w, err := scanCrawl(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) SaveWebsiteCrawl(ctx context.Context, crawl *models.WebsiteCrawl) error {
	if crawl == nil {
		return errors.New("nil crawl")
	}
	const q = `
		UPDATE website_crawls SET
			status = $2, pages_processed = $3, total_chunks = $4, processed_chunks = $5, error = $6,
			started_at = $7, completed_at = $8, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		crawl.ID, crawl.Status, crawl.PagesProcessed, crawl.TotalChunks, crawl.ProcessedChunks, crawl.Error,
		nullTime(crawl.StartedAt), nullTime(crawl.CompletedAt))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("website crawl", crawl.ID)
	}
	return nil
}

func (c *DatabaseClient) DeleteWebsiteCrawl(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM website_crawls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("website crawl", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteWebsiteCrawlsByBot(ctx context.Context, botID string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM website_crawls WHERE bot_id = $1`, botID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
