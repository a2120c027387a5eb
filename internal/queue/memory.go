package queue

import (
	"context"
	"sync"
)

// MemoryQueue is a single-process queue backed by a buffered channel.
// Enqueue blocks while the buffer is full.
type MemoryQueue struct {
	jobs chan Job

	mu        sync.Mutex
	results   map[string]chan Result
	cancelled map[string]struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryQueue{
		jobs:      make(chan Job, buffer),
		results:   make(map[string]chan Result),
		cancelled: make(map[string]struct{}),
		closed:    make(chan struct{}),
	}
}

// resultChan returns the mailbox for id, creating it on first use by
// either the submitter or the worker.
func (q *MemoryQueue) resultChan(id string) chan Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.results[id]
	if !ok {
		ch = make(chan Result, 1)
		q.results[id] = ch
	}
	return ch
}

func (q *MemoryQueue) forget(id string) {
	q.mu.Lock()
	delete(q.results, id)
	delete(q.cancelled, id)
	q.mu.Unlock()
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.resultChan(job.ID)

	select {
	case <-q.closed:
		q.forget(job.ID)
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		q.forget(job.ID)
		return ctx.Err()
	case <-q.closed:
		q.forget(job.ID)
		return ErrClosed
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-q.closed:
		return Job{}, ErrClosed
	}
}

func (q *MemoryQueue) Complete(ctx context.Context, res Result) error {
	ch := q.resultChan(res.JobID)

	q.mu.Lock()
	delete(q.cancelled, res.JobID)
	q.mu.Unlock()

	select {
	case ch <- res:
	default:
		// a result was already published
	}
	return nil
}

func (q *MemoryQueue) Await(ctx context.Context, jobID string) (Result, error) {
	ch := q.resultChan(jobID)

	select {
	case res := <-ch:
		q.forget(jobID)
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-q.closed:
		return Result{}, ErrClosed
	}
}

// Cancel marks a pending or running job. Jobs that are unknown or
// already have a result are left alone so no marker outlives its job.
func (q *MemoryQueue) Cancel(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.results[jobID]
	if !ok || len(ch) > 0 {
		return nil
	}
	q.cancelled[jobID] = struct{}{}
	return nil
}

func (q *MemoryQueue) Cancelled(ctx context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cancelled[jobID]
	return ok, nil
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
