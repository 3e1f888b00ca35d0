package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/crawler"
	"github.com/markdave123-py/botwise/internal/models"
)

const DefaultEmbedBatchSize = 20

// WebsiteCrawler produces page units for a website training source.
type WebsiteCrawler interface {
	Crawl(ctx context.Context, rawURL string, maxDepth int) ([]crawler.Page, error)
}

// Result is the outcome of one ingestion run. Status is the terminal status
// of the record; Err is set whenever Status is error or failed.
type Result struct {
	Status          string
	ChunkCount      int
	ProcessedChunks int
	Chunks          []models.Chunk
	Err             error
}

// Pipeline drives a SourceDocument or WebsiteCrawl through
// extract -> chunk -> dedupe -> embed -> upsert, persisting every transition.
type Pipeline struct {
	db         core.DbClient
	extractor  core.DocumentExtractor
	crawler    WebsiteCrawler
	chunker    *Chunker
	embeddings core.EmbeddingService
	store      core.VectorStore
	batchSize  int
	log        *zap.Logger
	now        func() time.Time
}

type PipelineOption func(*Pipeline)

func WithChunker(c *Chunker) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

func WithEmbedBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(db core.DbClient, ext core.DocumentExtractor, crawl WebsiteCrawler, emb core.EmbeddingService, store core.VectorStore, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		db:         db,
		extractor:  ext,
		crawler:    crawl,
		chunker:    NewChunker(),
		embeddings: emb,
		store:      store,
		batchSize:  DefaultEmbedBatchSize,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var documentFlow = map[models.DocumentStatus]models.DocumentStatus{
	models.DocumentPending:    models.DocumentProcessing,
	models.DocumentProcessing: models.DocumentChunking,
	models.DocumentChunking:   models.DocumentEmbedding,
	models.DocumentEmbedding:  models.DocumentCompleted,
}

var crawlFlow = map[models.CrawlStatus]models.CrawlStatus{
	models.CrawlPending:   models.CrawlCrawling,
	models.CrawlCrawling:  models.CrawlEmbedding,
	models.CrawlEmbedding: models.CrawlCompleted,
}

func (p *Pipeline) advanceDocument(ctx context.Context, doc *models.SourceDocument, next models.DocumentStatus) error {
	if doc.Status.Terminal() {
		return fmt.Errorf("document %s is %s, cannot move to %s", doc.ID, doc.Status, next)
	}
	if next != models.DocumentError && documentFlow[doc.Status] != next {
		return fmt.Errorf("document %s: invalid transition %s -> %s", doc.ID, doc.Status, next)
	}
	now := p.now()
	doc.Status = next
	switch next {
	case models.DocumentProcessing:
		doc.ProcessingStartTime = &now
	case models.DocumentCompleted, models.DocumentError:
		doc.ProcessingEndTime = &now
	}
	return p.db.SaveSourceDocument(ctx, doc)
}

func (p *Pipeline) advanceCrawl(ctx context.Context, crawl *models.WebsiteCrawl, next models.CrawlStatus) error {
	if crawl.Status.Terminal() {
		return fmt.Errorf("website crawl %s is %s, cannot move to %s", crawl.ID, crawl.Status, next)
	}
	if next != models.CrawlFailed && crawlFlow[crawl.Status] != next {
		return fmt.Errorf("website crawl %s: invalid transition %s -> %s", crawl.ID, crawl.Status, next)
	}
	now := p.now()
	crawl.Status = next
	switch next {
	case models.CrawlCrawling:
		crawl.StartedAt = &now
	case models.CrawlCompleted, models.CrawlFailed:
		crawl.CompletedAt = &now
	}
	return p.db.SaveWebsiteCrawl(ctx, crawl)
}

// IngestDocument processes one uploaded or pasted document. Records already in
// a terminal state are left untouched.
func (p *Pipeline) IngestDocument(ctx context.Context, doc *models.SourceDocument, payload []byte) Result {
	if doc.Status.Terminal() {
		return Result{
			Status: string(doc.Status), ChunkCount: doc.ChunkCount, ProcessedChunks: doc.ProcessedChunkCount,
			Err: fmt.Errorf("document %s already %s", doc.ID, doc.Status),
		}
	}
	log := p.log.With(zap.String("document_id", doc.ID), zap.String("bot_id", doc.BotID))

	if err := p.advanceDocument(ctx, doc, models.DocumentProcessing); err != nil {
		return p.FailDocument(ctx, doc, err)
	}
	log.Info("document processing", zap.String("name", doc.OriginalName), zap.String("mime_type", doc.MimeType))

	units, err := p.extractor.Extract(ctx, core.Source{
		Name:     doc.OriginalName,
		MimeType: doc.MimeType,
		URL:      doc.StorageURL,
		Data:     payload,
	})
	if err != nil {
		return p.FailDocument(ctx, doc, err)
	}

	if err := p.advanceDocument(ctx, doc, models.DocumentChunking); err != nil {
		return p.FailDocument(ctx, doc, err)
	}
	chunks := p.prepare(units)
	if len(chunks) == 0 {
		return p.FailDocument(ctx, doc, core.NewError(core.KindEmptyContent, doc.OriginalName+" produced no chunks", nil))
	}
	doc.ChunkCount = len(chunks)
	doc.ProcessedChunkCount = 0
	if err := p.advanceDocument(ctx, doc, models.DocumentEmbedding); err != nil {
		return p.FailDocument(ctx, doc, err)
	}
	log.Info("document chunked", zap.Int("chunks", len(chunks)))

	meta := func(ch models.Chunk) models.VectorMetadata {
		return models.VectorMetadata{
			ChatbotID:  doc.BotID,
			SourceType: models.SourceTypeDocument,
			Source:     doc.OriginalName,
			DocumentID: doc.ID,
		}
	}
	progress := func(done int) error {
		doc.ProcessedChunkCount = done
		return p.db.SaveSourceDocument(ctx, doc)
	}
	if err := p.embedAndStore(ctx, doc.BotID, chunks, meta, progress, log); err != nil {
		res := p.FailDocument(ctx, doc, err)
		res.Chunks = chunks
		return res
	}

	if err := p.advanceDocument(ctx, doc, models.DocumentCompleted); err != nil {
		return p.FailDocument(ctx, doc, err)
	}
	p.recompute(ctx, doc.BotID, log)
	log.Info("document completed", zap.Int("chunks", doc.ProcessedChunkCount))

	return Result{Status: string(doc.Status), ChunkCount: doc.ChunkCount, ProcessedChunks: doc.ProcessedChunkCount, Chunks: chunks}
}

// FailDocument marks doc as error with cause as its message. Counts and any
// vectors already written are kept.
func (p *Pipeline) FailDocument(ctx context.Context, doc *models.SourceDocument, cause error) Result {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log := p.log.With(zap.String("document_id", doc.ID), zap.String("bot_id", doc.BotID))
	if !doc.Status.Terminal() {
		doc.Error = cause.Error()
		if err := p.advanceDocument(saveCtx, doc, models.DocumentError); err != nil {
			log.Error("persist document failure", zap.Error(err))
		}
	}
	log.Error("document ingestion failed",
		zap.Int("processed_chunks", doc.ProcessedChunkCount), zap.Int("chunks", doc.ChunkCount), zap.Error(cause))

	return Result{Status: string(doc.Status), ChunkCount: doc.ChunkCount, ProcessedChunks: doc.ProcessedChunkCount, Err: cause}
}

// IngestWebsite crawls crawl.URL and indexes every page with text.
func (p *Pipeline) IngestWebsite(ctx context.Context, crawl *models.WebsiteCrawl) Result {
	if crawl.Status.Terminal() {
		return Result{
			Status: string(crawl.Status), ChunkCount: crawl.TotalChunks, ProcessedChunks: crawl.ProcessedChunks,
			Err: fmt.Errorf("website crawl %s already %s", crawl.ID, crawl.Status),
		}
	}
	log := p.log.With(zap.String("crawl_id", crawl.ID), zap.String("bot_id", crawl.BotID))

	if err := p.advanceCrawl(ctx, crawl, models.CrawlCrawling); err != nil {
		return p.FailWebsite(ctx, crawl, err)
	}
	log.Info("crawl started", zap.String("url", crawl.URL), zap.Int("max_depth", crawl.MaxDepth))

	pages, err := p.crawler.Crawl(ctx, crawl.URL, crawl.MaxDepth)
	if err != nil {
		return p.FailWebsite(ctx, crawl, err)
	}

	titles := make(map[string]string, len(pages))
	var units []core.Unit
	for _, pg := range pages {
		titles[pg.URL] = pg.Title
		units = append(units, pg.Units...)
	}
	chunks := p.prepare(units)
	if len(chunks) == 0 {
		return p.FailWebsite(ctx, crawl, core.NewError(core.KindEmptyContent, crawl.URL+" produced no chunks", nil))
	}
	crawl.PagesProcessed = len(pages)
	crawl.TotalChunks = len(chunks)
	crawl.ProcessedChunks = 0
	if err := p.advanceCrawl(ctx, crawl, models.CrawlEmbedding); err != nil {
		return p.FailWebsite(ctx, crawl, err)
	}
	log.Info("crawl fetched", zap.Int("pages", len(pages)), zap.Int("chunks", len(chunks)))

	meta := func(ch models.Chunk) models.VectorMetadata {
		return models.VectorMetadata{
			ChatbotID:      crawl.BotID,
			SourceType:     models.SourceTypeWebsite,
			Source:         ch.SourceLabel,
			WebsiteCrawlID: crawl.ID,
			Title:          titles[ch.SourceLabel],
		}
	}
	progress := func(done int) error {
		crawl.ProcessedChunks = done
		return p.db.SaveWebsiteCrawl(ctx, crawl)
	}
	if err := p.embedAndStore(ctx, crawl.BotID, chunks, meta, progress, log); err != nil {
		res := p.FailWebsite(ctx, crawl, err)
		res.Chunks = chunks
		return res
	}

	if err := p.advanceCrawl(ctx, crawl, models.CrawlCompleted); err != nil {
		return p.FailWebsite(ctx, crawl, err)
	}
	p.recompute(ctx, crawl.BotID, log)
	log.Info("crawl completed", zap.Int("pages", crawl.PagesProcessed), zap.Int("chunks", crawl.ProcessedChunks))

	return Result{Status: string(crawl.Status), ChunkCount: crawl.TotalChunks, ProcessedChunks: crawl.ProcessedChunks, Chunks: chunks}
}

// FailWebsite marks crawl as failed, keeping the cause (including its error kind) as the message.
func (p *Pipeline) FailWebsite(ctx context.Context, crawl *models.WebsiteCrawl, cause error) Result {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	log := p.log.With(zap.String("crawl_id", crawl.ID), zap.String("bot_id", crawl.BotID))
	if !crawl.Status.Terminal() {
		crawl.Error = cause.Error()
		if err := p.advanceCrawl(saveCtx, crawl, models.CrawlFailed); err != nil {
			log.Error("persist crawl failure", zap.Error(err))
		}
	}
	log.Error("website ingestion failed",
		zap.Int("processed_chunks", crawl.ProcessedChunks), zap.Int("chunks", crawl.TotalChunks), zap.Error(cause))

	return Result{Status: string(crawl.Status), ChunkCount: crawl.TotalChunks, ProcessedChunks: crawl.ProcessedChunks, Err: cause}
}

func (p *Pipeline) prepare(units []core.Unit) []models.Chunk {
	return Dedupe(dropBlank(p.chunker.Split(units)))
}

// embedAndStore runs embedding batches strictly in order. progress is called
// with the running total after each stored batch.
func (p *Pipeline) embedAndStore(
	ctx context.Context,
	botID string,
	chunks []models.Chunk,
	meta func(models.Chunk) models.VectorMetadata,
	progress func(done int) error,
	log *zap.Logger,
) error {
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		vectors, err := p.embeddings.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}

		records := make([]models.VectorRecord, len(batch))
		for i := range batch {
			ch := &batch[i]
			ch.ID = VectorID(ch.Content, botID)
			ch.Embedding = vectors[i]
			ch.Status = models.ChunkEmbedded

			md := meta(*ch)
			md.Text = ch.Content
			md.Page = ch.Page
			md.Position = ch.Position
			records[i] = models.VectorRecord{ID: ch.ID, Values: vectors[i], Metadata: md}
		}
		if err := p.store.Upsert(ctx, records); err != nil {
			return err
		}
		for i := range batch {
			batch[i].Status = models.ChunkStored
			batch[i].Embedding = nil
		}

		if err := progress(end); err != nil {
			return fmt.Errorf("persist progress: %w", err)
		}
		log.Debug("batch stored", zap.Int("done", end), zap.Int("total", len(chunks)))
	}
	return nil
}

func (p *Pipeline) recompute(ctx context.Context, botID string, log *zap.Logger) {
	stats, err := p.db.RecomputeBotTrainingStats(ctx, botID, p.now())
	if err != nil {
		log.Error("recompute bot training stats", zap.Error(err))
		return
	}
	log.Info("bot stats updated", zap.Int("total_documents", stats.TotalDocuments), zap.Int("total_chunks", stats.TotalChunks))
}
