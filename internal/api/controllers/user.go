package controllers

import (
	"time"

	"github.com/labstack/echo/v5"
)

// UserKey is the echo context key holding the authenticated user id.
const UserKey = "user_id"

func currentUser(c *echo.Context) string {
	id, _ := c.Get(UserKey).(string)
	return id
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now()
	}
	return time.Now()
}
