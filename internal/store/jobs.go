package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

const jobColumns = `id, user_id, url, request, status, stage, failure, outcomes, recorded, created_at, updated_at`

func (s *PersistentStore) CreateJob(ctx context.Context, job *domain.Job) error {
	var dbo jobDBO
	if err := dbo.FromDomain(job); err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		dbo.ID,
		dbo.UserID,
		dbo.URL,
		dbo.Request,
		dbo.Status,
		dbo.Stage,
		dbo.Failure,
		dbo.Outcomes,
		dbo.Recorded,
		dbo.CreatedAt,
		dbo.UpdatedAt,
	)
	return err
}

// UpdateJobStage moves a job to stage and marks it running.
func (s *PersistentStore) UpdateJobStage(ctx context.Context, id string, stage domain.Stage) error {
	query := `UPDATE jobs SET stage = ?, status = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, string(stage), string(domain.StatusRunning), time.Now().Unix(), id)
	return err
}

// FinishJob stores the terminal result. A nil failure means success.
func (s *PersistentStore) FinishJob(ctx context.Context, id string, outcomes []domain.DownloadOutcome, failure *domain.Failure) error {
	status, stage := finishedState(failure)

	failureJSON, err := nullJSON(failure, failure == nil)
	if err != nil {
		return err
	}
	outcomesJSON, err := nullJSON(outcomes, len(outcomes) == 0)
	if err != nil {
		return err
	}

	query := `UPDATE jobs SET status = ?, stage = ?, failure = ?, outcomes = ?, updated_at = ? WHERE id = ?`
	_, err = s.db.ExecContext(ctx, query, string(status), string(stage), failureJSON, outcomesJSON, time.Now().Unix(), id)
	return err
}

func (s *PersistentStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? LIMIT 1`

	var dbo jobDBO
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&dbo.ID,
		&dbo.UserID,
		&dbo.URL,
		&dbo.Request,
		&dbo.Status,
		&dbo.Stage,
		&dbo.Failure,
		&dbo.Outcomes,
		&dbo.Recorded,
		&dbo.CreatedAt,
		&dbo.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	return dbo.ToDomain()
}
