// Package gate admits download requests: it validates them, enforces
// the per-user daily quota, enqueues a task and waits for its result.
package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/metrics"
	"github.com/datallboy/tubefetch/internal/policy"
	"github.com/datallboy/tubefetch/internal/queue"
)

// Counter reports how many downloads a user recorded in [from, to).
type Counter interface {
	CountDownloads(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// JobStore tracks submitted jobs so they can be looked up after a timeout.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	FinishJob(ctx context.Context, id string, outcomes []domain.DownloadOutcome, failure *domain.Failure) error
}

type Submission struct {
	JobID    string
	Outcomes []domain.DownloadOutcome
}

type Gate struct {
	counter Counter
	jobs    JobStore
	queue   queue.Queue
	log     *logger.Logger

	limit           int
	waitTimeout     time.Duration
	cancelOnTimeout bool

	now   func() time.Time
	newID func() string
}

func New(cfg *config.Config, log *logger.Logger, counter Counter, jobs JobStore, q queue.Queue) *Gate {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gate{
		counter:         counter,
		jobs:            jobs,
		queue:           q,
		log:             log,
		limit:           cfg.Limits.DailyDownloads,
		waitTimeout:     cfg.Queue.WaitTimeout,
		cancelOnTimeout: cfg.Queue.CancelOnTimeout,
		now:             time.Now,
		newID:           func() string { return ksuid.New().String() },
	}
}

// Submit runs one request to completion. The wait ends at the configured
// timeout or the ctx deadline, whichever is first; the job itself keeps
// running unless cancel_on_timeout is set.
func (g *Gate) Submit(ctx context.Context, userID string, req domain.DownloadRequest) (*Submission, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Soft quota: two concurrent submissions can both pass this check.
	from, to := policy.DayWindow(g.now())
	used, err := g.counter.CountDownloads(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}
	if err := policy.CheckQuota(used, g.limit); err != nil {
		metrics.QuotaRejectionsTotal.Inc()
		g.log.Info("Quota reached for user %s (%d/%d)", userID, used, g.limit)
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	id := g.newID()
	now := g.now().UTC()

	if g.jobs != nil {
		if err := g.jobs.CreateJob(ctx, &domain.Job{
			ID:        id,
			UserID:    userID,
			Request:   req,
			Status:    domain.StatusPending,
			Stage:     domain.StageQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return nil, &domain.DispatchError{Reason: "failed to record job", Err: err}
		}
	}

	if err := g.queue.Enqueue(ctx, queue.Job{ID: id, Kind: domain.TaskKindDownload, Payload: payload, EnqueuedAt: now}); err != nil {
		dispatchErr := &domain.DispatchError{Reason: "failed to enqueue job", Err: err}
		if g.jobs != nil {
			if ferr := g.jobs.FinishJob(context.WithoutCancel(ctx), id, nil, domain.NewFailure(dispatchErr)); ferr != nil {
				g.log.Warn("Failed to mark job %s failed: %v", id, ferr)
			}
		}
		return nil, dispatchErr
	}
	g.log.Debug("Enqueued job %s for user %s", id, userID)

	return g.await(ctx, id)
}

func (g *Gate) await(ctx context.Context, id string) (*Submission, error) {
	waitCtx := ctx
	if g.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.waitTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := g.queue.Await(waitCtx, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			metrics.RecordGateWait("timeout", time.Since(start).Seconds())
			if g.cancelOnTimeout {
				if cerr := g.queue.Cancel(context.WithoutCancel(ctx), id); cerr != nil {
					g.log.Warn("Failed to cancel job %s: %v", id, cerr)
				}
			}
			return nil, &domain.GateTimeoutError{JobID: id, After: time.Since(start).Round(time.Millisecond)}
		}
		return nil, &domain.DispatchError{Reason: "failed waiting for result", Err: err}
	}

	if res.Failure != nil {
		metrics.RecordGateWait("failed", time.Since(start).Seconds())
		return nil, res.Failure.Err()
	}
	metrics.RecordGateWait("completed", time.Since(start).Seconds())

	var outcomes []domain.DownloadOutcome
	if err := json.Unmarshal(res.Payload, &outcomes); err != nil {
		return nil, fmt.Errorf("malformed result for job %s: %w", id, err)
	}
	return &Submission{JobID: id, Outcomes: outcomes}, nil
}
