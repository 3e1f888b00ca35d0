package ingestion_engine

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/botwise/internal/core"
)

// IngestConfig tunes the background workers.
//
// QueueSize:  capacity of the in-memory job queue; Enqueue fails fast when full.
// JobTimeout: upper bound for one document or website run.
type IngestConfig struct {
	QueueSize  int
	JobTimeout time.Duration
}

// QueuedIngestor runs ingestion jobs on a pool of workers:
//
// db:       persistence for documents and crawls.
// obj:      object storage holding the uploaded originals.
// pipeline: the extract/chunk/embed/store state machine.
// jobs:     in-memory queue of pending jobs.
type QueuedIngestor struct {
	db       core.DbClient
	obj      core.ObjectClient
	pipeline *Pipeline
	cfg      IngestConfig
	log      *zap.Logger
	jobs     chan Job
	workers  errgroup.Group
}
