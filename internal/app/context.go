package app

import (
	"context"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/gate"
	"github.com/datallboy/tubefetch/internal/infra/config"
	"github.com/datallboy/tubefetch/internal/infra/logger"
	"github.com/datallboy/tubefetch/internal/queue"
)

// Store is the persistence surface shared by the gate, the workers and
// the API. Both the sqlite and the postgres store satisfy it.
type Store interface {
	CountDownloads(ctx context.Context, userID string, from, to time.Time) (int, error)
	CreateJob(ctx context.Context, job *domain.Job) error
	UpdateJobStage(ctx context.Context, id string, stage domain.Stage) error
	FinishJob(ctx context.Context, id string, outcomes []domain.DownloadOutcome, failure *domain.Failure) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	RecordOutcomes(ctx context.Context, jobID, userID, url string, outcomes []domain.DownloadOutcome, at time.Time) (bool, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error)
	Close() error
}

type Submitter interface {
	Submit(ctx context.Context, userID string, req domain.DownloadRequest) (*gate.Submission, error)
}

type TokenVerifier interface {
	Verify(raw string) (string, error)
}

// Context holds the core environment and shared resources for tubefetch.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store    Store
	Queue    queue.Queue
	Gate     Submitter
	Verifier TokenVerifier
}

// NewContext initializes the base environment. Services are attached by
// the command that owns them.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}

// Close releases the queue and the store.
func (c *Context) Close() error {
	var firstErr error
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
