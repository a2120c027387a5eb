package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/datallboy/tubefetch/internal/domain"
)

const jobColumns = `id, user_id, url, request, status, stage, failure, outcomes, recorded, created_at, updated_at`

func jsonOrNil(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	req, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, FALSE, $7, $8)`,
		job.ID, job.UserID, job.Request.URL, req, string(job.Status), string(job.Stage), job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *Store) UpdateJobStage(ctx context.Context, id string, stage domain.Stage) error {
	_, err := s.db.Exec(ctx,
		`UPDATE jobs SET stage = $1, status = $2, updated_at = $3 WHERE id = $4`,
		string(stage), string(domain.StatusRunning), time.Now().UTC(), id,
	)
	return err
}

func (s *Store) FinishJob(ctx context.Context, id string, outcomes []domain.DownloadOutcome, failure *domain.Failure) error {
	status, stage := domain.StatusCompleted, domain.StageDone
	if failure != nil {
		status, stage = domain.StatusFailed, domain.StageFailed
	}

	failureJSON, err := jsonOrNil(failure, failure == nil)
	if err != nil {
		return err
	}
	outcomesJSON, err := jsonOrNil(outcomes, len(outcomes) == 0)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx,
		`UPDATE jobs SET status = $1, stage = $2, failure = $3, outcomes = $4, updated_at = $5 WHERE id = $6`,
		string(status), string(stage), failureJSON, outcomesJSON, time.Now().UTC(), id,
	)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	var (
		job                            domain.Job
		url, status, stage             string
		request, failure, outcomesJSON []byte
	)

	err := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id).Scan(
		&job.ID, &job.UserID, &url, &request, &status, &stage, &failure, &outcomesJSON, &job.Recorded, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job.Status = domain.JobStatus(status)
	job.Stage = domain.Stage(stage)

	if err := json.Unmarshal(request, &job.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request of job %s: %w", id, err)
	}
	if len(failure) > 0 {
		job.Failure = &domain.Failure{}
		if err := json.Unmarshal(failure, job.Failure); err != nil {
			return nil, fmt.Errorf("failed to decode failure of job %s: %w", id, err)
		}
	}
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &job.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes of job %s: %w", id, err)
		}
	}
	return &job, nil
}
