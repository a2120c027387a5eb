package controllers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/tubefetch/internal/domain"
)

const quotaDetail = "Daily download limit reached. Login with another account or try again tomorrow."

// statusFor maps a failure code onto an HTTP status.
func statusFor(code domain.FailureCode) int {
	switch code {
	case domain.CodeQuota:
		return http.StatusForbidden
	case domain.CodeDuration, domain.CodeSize, domain.CodeInvalidQuality, domain.CodeInvalidRequest:
		return http.StatusBadRequest
	case domain.CodeDispatch:
		return http.StatusServiceUnavailable
	case domain.CodeCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *echo.Context, err error) error {
	f := domain.NewFailure(err)
	body := errorResponse(f)

	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		body.Detail = quotaDetail
	}
	return c.JSON(statusFor(f.Code), body)
}

func writeMessage(c *echo.Context, status int, code, detail string) error {
	return c.JSON(status, &ErrorResponse{Code: code, Detail: detail})
}
