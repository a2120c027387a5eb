package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/domain"
)

type DownloadController struct {
	App *app.Context
	Now func() time.Time
}

// Handle submits a download and waits for it. A wait that outlives the
// gate timeout answers 202 with a pointer to the job resource.
func (ctrl *DownloadController) Handle(c *echo.Context) error {
	var req domain.DownloadRequest
	if err := c.Bind(&req); err != nil {
		return writeMessage(c, http.StatusBadRequest, string(domain.CodeInvalidRequest), "malformed request body")
	}

	user := currentUser(c)
	ctx := c.Request().Context()

	sub, err := ctrl.App.Gate.Submit(ctx, user, req)
	if err != nil {
		var gt *domain.GateTimeoutError
		if errors.As(err, &gt) {
			return c.JSON(http.StatusAccepted, &AcceptedResponse{
				JobID:     gt.JobID,
				Status:    string(domain.StatusRunning),
				StatusURL: fmt.Sprintf("/jobs/%s", gt.JobID),
				Message:   "download still in progress",
			})
		}
		ctrl.App.Logger.Warn("Download for user %s failed: %v", user, err)
		return writeError(c, err)
	}

	if len(sub.Outcomes) == 0 {
		return writeMessage(c, http.StatusBadRequest, string(domain.CodeFetch), "Download failed")
	}

	if _, err := ctrl.App.Store.RecordOutcomes(ctx, sub.JobID, user, req.URL, sub.Outcomes, clock(ctrl.Now).UTC()); err != nil {
		ctrl.App.Logger.Error("Failed to record outcomes of job %s: %v", sub.JobID, err)
		return c.JSON(http.StatusInternalServerError, &ErrorResponse{
			Code:   string(domain.CodeInternal),
			Detail: "download finished but could not be recorded",
			JobID:  sub.JobID,
		})
	}

	return c.JSON(http.StatusOK, &DownloadResponse{
		JobID:            sub.JobID,
		DownloadedVideos: videoResponses(sub.Outcomes),
	})
}
