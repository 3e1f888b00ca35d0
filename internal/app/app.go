package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/api/handlers"
	"github.com/markdave123-py/botwise/internal/config"
	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/crawler"
	db "github.com/markdave123-py/botwise/internal/core/database"
	"github.com/markdave123-py/botwise/internal/core/extractor"
	"github.com/markdave123-py/botwise/internal/core/history"
	"github.com/markdave123-py/botwise/internal/core/ingestion_engine"
	"github.com/markdave123-py/botwise/internal/core/llm"
	objectclient "github.com/markdave123-py/botwise/internal/core/object-client"
	"github.com/markdave123-py/botwise/internal/core/retrieval"
	"github.com/markdave123-py/botwise/internal/core/vectorstore"
	"github.com/markdave123-py/botwise/internal/services"
)

type App struct {
	cfg          *config.Config
	log          *zap.Logger
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Ingestor     *ingestion_engine.QueuedIngestor
	Server       *Server

	stopWorkers context.CancelFunc
	closers     []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dbClient, err := a.newDatabase(appCtx)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	log.Info("database initialized and ready", zap.String("driver", cfg.StoreDriver))

	objClient, err := a.newObjectStore(appCtx)
	if err != nil {
		return nil, err
	}
	a.ObjectClient = objClient
	log.Info("object client initialized and ready", zap.String("driver", cfg.ObjectStore))

	index, err := a.newVectorIndex(appCtx, dbClient)
	if err != nil {
		return nil, err
	}
	store := vectorstore.NewClient(index,
		vectorstore.WithUpsertBatchSize(cfg.UpsertBatchSize),
		vectorstore.WithBatchDelay(cfg.UpsertBatchDelay),
		vectorstore.WithDeleteScanLimit(cfg.DeleteScanLimit),
		vectorstore.WithLogger(log.Named("vectorstore")),
	)
	log.Info("vector index ready", zap.String("driver", cfg.VectorStore), zap.Int("dim", index.Dimensions()))

	providers, err := llm.NewProvidersFromConfig(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, providers.Close)

	hist, err := a.newHistory(appCtx)
	if err != nil {
		return nil, err
	}

	crawl := crawler.New(crawler.Config{
		MaxDepth:    cfg.CrawlMaxDepth,
		MaxPages:    cfg.CrawlMaxPages,
		PageTimeout: cfg.CrawlPageTimeout,
		Retries:     cfg.CrawlRetries,
		Timeout:     cfg.CrawlTimeout,
		UserAgent:   cfg.CrawlUserAgent,
	}, &http.Client{Timeout: cfg.CrawlPageTimeout}, log.Named("crawler"))

	pipeline := ingestion_engine.NewPipeline(dbClient, extractor.New(false), crawl, providers.Embeddings, store,
		ingestion_engine.WithChunker(ingestion_engine.NewChunker(
			ingestion_engine.WithChunkSize(cfg.ChunkSize),
			ingestion_engine.WithOverlap(cfg.ChunkOverlap),
		)),
		ingestion_engine.WithEmbedBatchSize(cfg.EmbedBatchSize),
		ingestion_engine.WithPipelineLogger(log.Named("pipeline")),
	)
	a.Ingestor = ingestion_engine.NewQueuedIngestor(dbClient, objClient, pipeline, ingestion_engine.IngestConfig{
		QueueSize:  cfg.IngestQueueSize,
		JobTimeout: cfg.IngestTimeout,
	}, log.Named("ingestor"))

	composer := retrieval.NewComposer(providers.Embeddings, store, providers.Models, dbClient, cfg.GenModel, log.Named("composer"))

	training := services.NewTrainingService(dbClient, objClient, store, a.Ingestor, cfg.BucketName, log.Named("training"))
	chat := services.NewChatService(dbClient, hist, composer, log.Named("chat"))

	router := NewRouter(cfg,
		handlers.NewTrainingHandler(dbClient, training, log.Named("http")),
		handlers.NewChatHandler(chat, log.Named("http")),
	)
	a.Server = NewServer(cfg, router, log)

	ok = true
	return a, nil
}

func (a *App) newDatabase(ctx context.Context) (core.DbClient, error) {
	if a.cfg.StoreDriver == "memory" {
		return db.NewMemoryClient(), nil
	}
	c, err := db.NewDatabaseClient(ctx, a.cfg, a.log.Named("db"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, c.Close)
	a.log.Info("postgres schema ready", zap.Int("version", c.Schema().Version))
	return c, nil
}

func (a *App) newObjectStore(ctx context.Context) (core.ObjectClient, error) {
	if a.cfg.ObjectStore == "memory" {
		return objectclient.NewMemoryClient(), nil
	}
	return objectclient.NewS3Client(ctx, a.cfg, a.log.Named("s3"))
}

func (a *App) newVectorIndex(ctx context.Context, dbClient core.DbClient) (core.VectorIndex, error) {
	switch a.cfg.VectorStore {
	case "memory":
		return vectorstore.NewMemoryIndex(a.cfg.EmbedDim), nil
	case "pgvector":
		pg, ok := dbClient.(*db.DatabaseClient)
		if !ok {
			return nil, errors.New("pgvector needs the postgres database client")
		}
		return vectorstore.NewPgVectorIndex(ctx, pg.DB(), a.cfg.EmbedDim)
	case "milvus":
		mi, err := vectorstore.NewMilvusIndex(ctx, vectorstore.MilvusConfig{
			Address:    a.cfg.MilvusAddress,
			Username:   a.cfg.MilvusUsername,
			Password:   a.cfg.MilvusPassword,
			DBName:     a.cfg.MilvusDB,
			Collection: a.cfg.MilvusCollection,
			Dim:        a.cfg.EmbedDim,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mi.Close)
		return mi, nil
	}
	return nil, fmt.Errorf("unknown vector store %q", a.cfg.VectorStore)
}

func (a *App) newHistory(ctx context.Context) (core.HistoryStore, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("REDIS_URL not set, keeping chat history in memory")
		return history.NewMemoryStore(), nil
	}
	rdb, err := history.NewRedisClient(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	return history.NewRedisStore(rdb, a.cfg.HistoryTTL, a.log.Named("history")), nil
}

// StartWorkers launches the ingestion workers. They stop picking up jobs when
// StopWorkers is called or ctx is done.
func (a *App) StartWorkers(ctx context.Context) {
	wctx, cancel := context.WithCancel(ctx)
	a.stopWorkers = cancel
	a.Ingestor.Start(wctx, a.cfg.IngestWorkers)
	a.log.Info("ingestion workers started", zap.Int("workers", a.cfg.IngestWorkers))
}

// StopWorkers stops the workers and waits for in-flight jobs until ctx is done.
func (a *App) StopWorkers(ctx context.Context) error {
	if a.stopWorkers == nil {
		return nil
	}
	a.stopWorkers()
	done := make(chan error, 1)
	go func() { done <- a.Ingestor.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("ingestion workers still running: %w", ctx.Err())
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
