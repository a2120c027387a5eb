package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/logger"
)

// Pool runs a fixed number of workers that pull jobs from a queue and
// dispatch them through the registry.
type Pool struct {
	queue    Queue
	registry *Registry
	size     int
	log      *logger.Logger

	// CancelPoll is how often a running job checks for a cancel request.
	CancelPoll time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewPool(q Queue, r *Registry, size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Pool{
		queue:      q,
		registry:   r,
		size:       size,
		log:        log,
		CancelPoll: time.Second,
	}
}

func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("pool already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 1; i <= p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.log.Info("Worker pool started with %d workers for %v", p.size, p.registry.Kinds())
	return nil
}

// Stop cancels in-flight jobs and waits for every worker to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("Worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return
			}
			p.log.Warn("Worker %d: dequeue failed: %v", id, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, workerID int, job Job) {
	log := p.log.With("job", job.ID)
	res := Result{JobID: job.ID}

	h, ok := p.registry.Lookup(job.Kind)
	if !ok {
		log.Error("Worker %d: no handler for task kind %q", workerID, job.Kind)
		res.Failure = &domain.Failure{Code: domain.CodeInternal, Message: fmt.Sprintf("unknown task kind %q", job.Kind)}
	} else {
		jobCtx, cancel := context.WithCancel(ctx)
		go p.watchCancel(jobCtx, job.ID, cancel)

		log.Info("Worker %d: starting %s", workerID, job.Kind)
		payload, err := safeCall(jobCtx, h, job)
		cancel()

		if err != nil {
			res.Failure = domain.NewFailure(err)
		} else {
			res.Payload = payload
		}
	}

	// Publish even when shutting down so the submitter is not left waiting
	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.queue.Complete(completeCtx, res); err != nil {
		log.Error("Worker %d: failed to publish result: %v", workerID, err)
	}
}

// watchCancel cancels the job context once a cancel request shows up.
func (p *Pool) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(p.CancelPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := p.queue.Cancelled(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Debug("Cancel check for %s failed: %v", jobID, err)
				}
				continue
			}
			if cancelled {
				p.log.Info("Job %s cancelled by request", jobID)
				cancel()
				return
			}
		}
	}
}

func safeCall(ctx context.Context, h Handler, job Job) (payload json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", job.Kind, r)
		}
	}()
	return h(ctx, job)
}
