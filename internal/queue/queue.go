// Package queue moves task jobs from submitters to workers and carries
// results back. Backends: an in-process channel queue and Redis lists.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

var ErrClosed = errors.New("queue closed")

type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Result is what a worker publishes for a job: a payload on success or
// a failure, never both.
type Result struct {
	JobID   string          `json:"job_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Failure *domain.Failure `json:"failure,omitempty"`
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue blocks until a job is available.
	Dequeue(ctx context.Context) (Job, error)
	Complete(ctx context.Context, res Result) error
	// Await blocks until the result for jobID is published.
	Await(ctx context.Context, jobID string) (Result, error)
	// Cancel asks the worker running jobID to stop.
	Cancel(ctx context.Context, jobID string) error
	Cancelled(ctx context.Context, jobID string) (bool, error)
	Close() error
}
