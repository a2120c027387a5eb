package domain

import "time"

// TaskKindDownload is the queue task kind for a download job.
const TaskKindDownload = "download_video"

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

func (s JobStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Stage string

const (
	StageQueued     Stage = "queued"
	StageProbing    Stage = "probing"
	StageValidating Stage = "validating"
	StageFetching   Stage = "fetching"
	StageTrimming   Stage = "trimming"
	StageAssembling Stage = "assembling"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Job tracks one submission from enqueue to completion.
type Job struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Request   DownloadRequest   `json:"request"`
	Status    JobStatus         `json:"status"`
	Stage     Stage             `json:"stage"`
	Failure   *Failure          `json:"failure,omitempty"`
	Outcomes  []DownloadOutcome `json:"outcomes,omitempty"`
	Recorded  bool              `json:"recorded"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

const HistoryStatusSuccess = "Success"

type HistoryEntry struct {
	JobID       string    `json:"job_id"`
	URL         string    `json:"url"`
	DownloadURL string    `json:"download_url"`
	Status      string    `json:"status"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	DownloadAt  time.Time `json:"download_at"`
}
