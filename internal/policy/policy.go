// Package policy holds the admission rules applied to a download:
// media limits checked after probing and the per-user daily quota
// checked before a job is enqueued.
package policy

import (
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

type Limits struct {
	MaxDurationSeconds int64
	MaxSizeBytes       int64
}

func (l Limits) Check(durationSeconds, sizeBytes int64) error {
	return CheckLimits(durationSeconds, sizeBytes, l.MaxDurationSeconds, l.MaxSizeBytes)
}

// CheckLimits rejects media that exceeds either bound. A zero value on
// either side means unknown or unlimited and always passes.
func CheckLimits(durationSeconds, sizeBytes, maxDuration, maxSize int64) error {
	if maxDuration > 0 && durationSeconds > maxDuration {
		return &domain.LimitViolation{Kind: domain.LimitDuration, Got: durationSeconds, Max: maxDuration}
	}
	if maxSize > 0 && sizeBytes > maxSize {
		return &domain.LimitViolation{Kind: domain.LimitSize, Got: sizeBytes, Max: maxSize}
	}
	return nil
}

// CheckQuota fails once used has reached limit. A limit of zero disables the quota.
func CheckQuota(used, limit int) error {
	if limit > 0 && used >= limit {
		return &domain.QuotaExceededError{Used: used, Limit: limit}
	}
	return nil
}

// DayWindow returns the UTC calendar day containing now as [from, to).
func DayWindow(now time.Time) (from, to time.Time) {
	u := now.UTC()
	from = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
