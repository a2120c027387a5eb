package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/domain"
)

const defaultHistoryLimit = 100

type HistoryController struct {
	App *app.Context
}

func (ctrl *HistoryController) Handle(c *echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return writeMessage(c, http.StatusBadRequest, string(domain.CodeInvalidRequest), "limit must be a positive integer")
		}
		limit = n
	}

	entries, err := ctrl.App.Store.ListHistory(c.Request().Context(), currentUser(c), limit)
	if err != nil {
		ctrl.App.Logger.Error("Failed to list history: %v", err)
		return writeMessage(c, http.StatusInternalServerError, string(domain.CodeInternal), "failed to load history")
	}
	if len(entries) == 0 {
		return writeMessage(c, http.StatusNotFound, "not_found", "No download history found")
	}
	return c.JSON(http.StatusOK, entries)
}
