package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/datallboy/tubefetch/internal/api/controllers"
	"github.com/datallboy/tubefetch/internal/app"
	"github.com/datallboy/tubefetch/internal/auth"
)

// LocalUser owns every request when no jwt secret is configured.
const LocalUser = "local"

// requireUser resolves the caller from the bearer token and stores the
// user id on the echo context.
func requireUser(a *app.Context) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if a.Verifier == nil {
				c.Set(controllers.UserKey, LocalUser)
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				raw = ""
			}

			user, err := a.Verifier.Verify(strings.TrimSpace(raw))
			if err != nil {
				detail := "invalid bearer token"
				if errors.Is(err, auth.ErrMissingToken) {
					detail = "missing bearer token"
				}
				c.Response().Header().Set("WWW-Authenticate", `Bearer realm="tubefetch"`)
				return c.JSON(http.StatusUnauthorized, &controllers.ErrorResponse{Code: "unauthorized", Detail: detail})
			}

			c.Set(controllers.UserKey, user)
			return next(c)
		}
	}
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per authenticated user.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*userLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*userLimiter),
		rate:     rate.Limit(float64(perMinute) / 60),
		burst:    max(perMinute, 1),
		now:      time.Now,
	}
}

func (rl *RateLimiter) allow(user string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > 3*time.Minute {
		for id, l := range rl.limiters {
			if now.Sub(l.lastSeen) > 5*time.Minute {
				delete(rl.limiters, id)
			}
		}
		rl.lastSweep = now
	}

	l, ok := rl.limiters[user]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[user] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			user, _ := c.Get(controllers.UserKey).(string)
			if !rl.allow(user) {
				retryAfter := max(int(1/float64(rl.rate)), 1)
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, &controllers.ErrorResponse{Code: "rate_limited", Detail: "rate limit exceeded"})
			}
			return next(c)
		}
	}
}
