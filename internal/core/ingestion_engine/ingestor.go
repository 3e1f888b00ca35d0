package ingestion_engine

import (
	"context"
	"errors"
)

type JobKind string

const (
	JobDocument JobKind = "document"
	JobWebsite  JobKind = "website"
)

// Job names one record to ingest.
type Job struct {
	Kind JobKind
	ID   string
}

var ErrQueueFull = errors.New("ingestion queue is full")

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(job Job) error
	ProcessOne(ctx context.Context, job Job) error
}
