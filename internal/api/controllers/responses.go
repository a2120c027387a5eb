package controllers

import (
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

// -- POST /download, GET /jobs/:id ---
type VideoResponse struct {
	Status        string `json:"Status"`
	Filepath      string `json:"filepath"`
	Title         string `json:"title"`
	Duration      string `json:"duration"`
	Views         int64  `json:"views"`
	Likes         int64  `json:"likes"`
	Channel       string `json:"channel"`
	ThumbnailURL  string `json:"thumbnail_url"`
	PublishedDate string `json:"published_date"`
}

type DownloadResponse struct {
	JobID            string          `json:"job_id"`
	DownloadedVideos []VideoResponse `json:"downloaded_videos"`
}

type AcceptedResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
	Message   string `json:"message"`
}

type JobResponse struct {
	JobID            string           `json:"job_id"`
	Status           domain.JobStatus `json:"status"`
	Stage            domain.Stage     `json:"stage"`
	Error            *ErrorResponse   `json:"error,omitempty"`
	DownloadedVideos []VideoResponse  `json:"downloaded_videos,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// -- errors ---
type ErrorResponse struct {
	Code   string `json:"error"`
	Detail string `json:"detail"`
	Field  string `json:"field,omitempty"`
	Got    int64  `json:"got,omitempty"`
	Max    int64  `json:"max,omitempty"`
	JobID  string `json:"job_id,omitempty"`
}

func videoResponses(outcomes []domain.DownloadOutcome) []VideoResponse {
	out := make([]VideoResponse, 0, len(outcomes))
	for _, o := range outcomes {
		if o.ArtifactReference == "" {
			continue
		}
		m := o.Metadata
		out = append(out, VideoResponse{
			Status:        domain.HistoryStatusSuccess,
			Filepath:      o.ArtifactReference,
			Title:         m.Title,
			Duration:      m.Duration,
			Views:         m.Views,
			Likes:         m.Likes,
			Channel:       m.Channel,
			ThumbnailURL:  m.ThumbnailURL,
			PublishedDate: m.PublishedDate,
		})
	}
	return out
}

func errorResponse(f *domain.Failure) *ErrorResponse {
	if f == nil {
		return nil
	}
	return &ErrorResponse{Code: string(f.Code), Detail: f.Message, Field: f.Field, Got: f.Got, Max: f.Max}
}
