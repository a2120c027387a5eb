package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/domain"
)

type JobsController struct {
	App *app.Context
	Now func() time.Time
}

// HandleGet reports a job owned by the caller. The first read of a
// completed job that nobody recorded writes its history.
func (ctrl *JobsController) HandleGet(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return writeMessage(c, http.StatusBadRequest, string(domain.CodeInvalidRequest), "missing job id")
	}

	ctx := c.Request().Context()
	job, err := ctrl.App.Store.GetJob(ctx, id)
	if errors.Is(err, domain.ErrJobNotFound) || (err == nil && job.UserID != currentUser(c)) {
		return writeMessage(c, http.StatusNotFound, "not_found", "job not found")
	}
	if err != nil {
		ctrl.App.Logger.Error("Failed to load job %s: %v", id, err)
		return writeMessage(c, http.StatusInternalServerError, string(domain.CodeInternal), "failed to load job")
	}

	if job.Status == domain.StatusCompleted && !job.Recorded && len(job.Outcomes) > 0 {
		if _, err := ctrl.App.Store.RecordOutcomes(ctx, job.ID, job.UserID, job.Request.URL, job.Outcomes, clock(ctrl.Now).UTC()); err != nil {
			ctrl.App.Logger.Error("Failed to record outcomes of job %s: %v", job.ID, err)
			return writeMessage(c, http.StatusInternalServerError, string(domain.CodeInternal), "failed to record job")
		}
	}

	resp := &JobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Stage:     job.Stage,
		Error:     errorResponse(job.Failure),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == domain.StatusCompleted {
		resp.DownloadedVideos = videoResponses(job.Outcomes)
	}
	return c.JSON(http.StatusOK, resp)
}
