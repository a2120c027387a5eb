package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

// jobDBO maps to the jobs table
type jobDBO struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	URL       string         `db:"url"`
	Request   string         `db:"request"`
	Status    string         `db:"status"`
	Stage     string         `db:"stage"`
	Failure   sql.NullString `db:"failure"`
	Outcomes  sql.NullString `db:"outcomes"`
	Recorded  bool           `db:"recorded"`
	CreatedAt int64          `db:"created_at"`
	UpdatedAt int64          `db:"updated_at"`
}

// Mapper: DBO to Domain Job
func (j *jobDBO) ToDomain() (*domain.Job, error) {
	job := &domain.Job{
		ID:        j.ID,
		UserID:    j.UserID,
		Status:    domain.JobStatus(j.Status),
		Stage:     domain.Stage(j.Stage),
		Recorded:  j.Recorded,
		CreatedAt: time.Unix(j.CreatedAt, 0).UTC(),
		UpdatedAt: time.Unix(j.UpdatedAt, 0).UTC(),
	}

	if err := json.Unmarshal([]byte(j.Request), &job.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request of job %s: %w", j.ID, err)
	}
	if j.Failure.Valid && j.Failure.String != "" {
		job.Failure = &domain.Failure{}
		if err := json.Unmarshal([]byte(j.Failure.String), job.Failure); err != nil {
			return nil, fmt.Errorf("failed to decode failure of job %s: %w", j.ID, err)
		}
	}
	if j.Outcomes.Valid && j.Outcomes.String != "" {
		if err := json.Unmarshal([]byte(j.Outcomes.String), &job.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes of job %s: %w", j.ID, err)
		}
	}
	return job, nil
}

// Mapper: Domain Job to DBO
func (j *jobDBO) FromDomain(job *domain.Job) error {
	req, err := json.Marshal(job.Request)
	if err != nil {
		return err
	}

	j.ID = job.ID
	j.UserID = job.UserID
	j.URL = job.Request.URL
	j.Request = string(req)
	j.Status = string(job.Status)
	j.Stage = string(job.Stage)
	j.Recorded = job.Recorded
	j.CreatedAt = job.CreatedAt.Unix()
	j.UpdatedAt = job.UpdatedAt.Unix()

	if j.Failure, err = nullJSON(job.Failure, job.Failure == nil); err != nil {
		return err
	}
	j.Outcomes, err = nullJSON(job.Outcomes, len(job.Outcomes) == 0)
	return err
}

func nullJSON(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// finishedState maps a job result to its terminal status and stage.
func finishedState(failure *domain.Failure) (domain.JobStatus, domain.Stage) {
	if failure != nil {
		return domain.StatusFailed, domain.StageFailed
	}
	return domain.StatusCompleted, domain.StageDone
}
