package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDurationExceeded matches any LimitViolation of kind duration.
	ErrDurationExceeded = errors.New("duration exceeds limit")
	// ErrSizeExceeded matches any LimitViolation of kind size.
	ErrSizeExceeded = errors.New("size exceeds limit")
	ErrCancelled    = errors.New("download cancelled")
	ErrJobNotFound  = errors.New("job not found")
)

type LimitKind string

const (
	LimitDuration LimitKind = "duration"
	LimitSize     LimitKind = "size"
)

type LimitViolation struct {
	Kind LimitKind
	Got  int64
	Max  int64
}

func (e *LimitViolation) Error() string {
	if e.Kind == LimitSize {
		return fmt.Sprintf("file size %d bytes exceeds the maximum of %d bytes", e.Got, e.Max)
	}
	return fmt.Sprintf("video duration %ds exceeds the maximum of %ds", e.Got, e.Max)
}

func (e *LimitViolation) Is(target error) bool {
	switch target {
	case ErrDurationExceeded:
		return e.Kind == LimitDuration
	case ErrSizeExceeded:
		return e.Kind == LimitSize
	}
	return false
}

// ExtractionError is a failed metadata probe.
type ExtractionError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *ExtractionError) Error() string { return "extraction failed: " + e.Reason }
func (e *ExtractionError) Unwrap() error { return e.Err }

// FetchError is a failed media download.
type FetchError struct {
	Reason    string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string { return "fetch failed: " + e.Reason }
func (e *FetchError) Unwrap() error { return e.Err }

type TrimError struct {
	Reason string
	Err    error
}

func (e *TrimError) Error() string { return "trim failed: " + e.Reason }
func (e *TrimError) Unwrap() error { return e.Err }

type InvalidQualityError struct {
	Quality Quality
}

func (e *InvalidQualityError) Error() string {
	return fmt.Sprintf("invalid quality value %q, must be 360p, 480p, 720p, 1080p or 4k", string(e.Quality))
}

type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string { return e.Reason }

type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily download limit reached (%d/%d), try again tomorrow", e.Used, e.Limit)
}

// DispatchError means the job could not be handed to the queue.
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch failed: %s: %v", e.Reason, e.Err)
	}
	return "dispatch failed: " + e.Reason
}
func (e *DispatchError) Unwrap() error { return e.Err }

// GateTimeoutError is returned when the caller stopped waiting.
// The job keeps running and can be looked up by JobID.
type GateTimeoutError struct {
	JobID string
	After time.Duration
}

func (e *GateTimeoutError) Error() string {
	return fmt.Sprintf("job %s still running after %s", e.JobID, e.After)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Transient
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}
