package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/metrics"
	"github.com/datallboy/tubefetch/internal/queue"
)

// JobTracker persists job progress. It is optional.
type JobTracker interface {
	UpdateJobStage(ctx context.Context, id string, stage domain.Stage) error
	FinishJob(ctx context.Context, id string, outcomes []domain.DownloadOutcome, failure *domain.Failure) error
}

// NewDownloadHandler adapts the orchestrator to a queue task handler.
func NewDownloadHandler(o *Orchestrator, tracker JobTracker, log *logger.Logger) queue.Handler {
	if log == nil {
		log = logger.NewNop()
	}

	return func(ctx context.Context, job queue.Job) (json.RawMessage, error) {
		var req domain.DownloadRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return nil, &domain.InvalidRequestError{Field: "payload", Reason: "malformed task payload: " + err.Error()}
		}

		// Progress writes must land even while the job is being cancelled
		persistCtx := context.WithoutCancel(ctx)

		observe := func(stage domain.Stage) {
			if tracker == nil || stage == domain.StageDone || stage == domain.StageFailed {
				return
			}
			if err := tracker.UpdateJobStage(persistCtx, job.ID, stage); err != nil {
				log.Warn("Failed to persist stage %s for job %s: %v", stage, job.ID, err)
			}
		}

		metrics.ActiveJobs.Inc()
		start := time.Now()
		outcomes, runErr := o.Run(ctx, job.ID, req, observe)
		metrics.ActiveJobs.Dec()

		failure := domain.NewFailure(runErr)
		if failure != nil {
			metrics.RecordJob(string(failure.Code))
		} else {
			metrics.RecordJob(string(domain.StatusCompleted))
		}
		log.Debug("Job %s finished in %v", job.ID, time.Since(start))

		if tracker != nil {
			if err := tracker.FinishJob(persistCtx, job.ID, outcomes, failure); err != nil {
				log.Error("Failed to persist result for job %s: %v", job.ID, err)
			}
		}

		if runErr != nil {
			return nil, runErr
		}
		return json.Marshal(outcomes)
	}
}

// RegisterTasks binds the download handler to its task kind.
func RegisterTasks(r *queue.Registry, h queue.Handler) error {
	return r.Register(domain.TaskKindDownload, h)
}
