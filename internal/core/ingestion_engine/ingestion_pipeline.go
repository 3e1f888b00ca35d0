package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	objectclient "github.com/markdave123-py/botwise/internal/core/object-client"
)

var _ Ingestor = (*QueuedIngestor)(nil)

// NewQueuedIngestor constructs the ingestor with a bounded job queue.
func NewQueuedIngestor(db core.DbClient, obj core.ObjectClient, pipeline *Pipeline, cfg IngestConfig, log *zap.Logger) *QueuedIngestor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueuedIngestor{
		db: db, obj: obj, pipeline: pipeline, cfg: cfg, log: log,
		jobs: make(chan Job, cfg.QueueSize),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx is done.
func (i *QueuedIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		i.workers.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					i.log.Debug("ingest worker shutting down", zap.Int("worker", w))
					return nil
				case job := <-i.jobs:
					i.log.Info("ingest job picked up", zap.String("kind", string(job.Kind)), zap.String("id", job.ID), zap.Int("worker", w))
					if err := i.ProcessOne(ctx, job); err != nil {
						i.log.Error("ingest job failed", zap.String("kind", string(job.Kind)), zap.String("id", job.ID), zap.Error(err))
					}
				}
			}
		})
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *QueuedIngestor) Wait() error {
	return i.workers.Wait()
}

// Enqueue schedules a job without blocking. A saturated queue returns ErrQueueFull.
func (i *QueuedIngestor) Enqueue(job Job) error {
	select {
	case i.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// ProcessOne runs a single job to a terminal state. In-flight jobs outlive
// cancellation of ctx and are bounded by the job timeout instead.
func (i *QueuedIngestor) ProcessOne(ctx context.Context, job Job) error {
	proctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.JobTimeout)
	defer cancel()

	switch job.Kind {
	case JobDocument:
		return i.processDocument(proctx, job.ID)
	case JobWebsite:
		return i.processWebsite(proctx, job.ID)
	}
	return fmt.Errorf("unknown job kind %q", job.Kind)
}

func (i *QueuedIngestor) processDocument(ctx context.Context, docID string) error {
	doc, err := i.db.GetSourceDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	bucket, key := objectclient.ParseURL(doc.StorageURL)
	payload, err := i.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return i.pipeline.FailDocument(ctx, doc, fmt.Errorf("fetch original: %w", err)).Err
	}

	return i.pipeline.IngestDocument(ctx, doc, payload).Err
}

func (i *QueuedIngestor) processWebsite(ctx context.Context, crawlID string) error {
	crawl, err := i.db.GetWebsiteCrawl(ctx, crawlID)
	if err != nil {
		return fmt.Errorf("load website crawl: %w", err)
	}
	return i.pipeline.IngestWebsite(ctx, crawl).Err
}
