package domain

import (
	"context"
	"errors"
)

type FailureCode string

const (
	CodeExtraction     FailureCode = "extraction_error"
	CodeDuration       FailureCode = "duration_exceeded"
	CodeSize           FailureCode = "size_exceeded"
	CodeInvalidQuality FailureCode = "invalid_quality"
	CodeInvalidRequest FailureCode = "invalid_request"
	CodeFetch          FailureCode = "fetch_error"
	CodeTrim           FailureCode = "trim_error"
	CodeQuota          FailureCode = "quota_exceeded"
	CodeDispatch       FailureCode = "dispatch_error"
	CodeCancelled      FailureCode = "cancelled"
	CodeInternal       FailureCode = "internal_error"
)

// Failure is the serializable form of a task error. It travels through
// the queue result and the jobs table and is turned back into a typed
// error with Err.
type Failure struct {
	Code      FailureCode `json:"code"`
	Message   string      `json:"message"`
	Field     string      `json:"field,omitempty"`
	Got       int64       `json:"got,omitempty"`
	Max       int64       `json:"max,omitempty"`
	Transient bool        `json:"transient,omitempty"`
}

func NewFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var (
		lv *LimitViolation
		ee *ExtractionError
		fe *FetchError
		te *TrimError
		iq *InvalidQualityError
		ir *InvalidRequestError
		qe *QuotaExceededError
		de *DispatchError
	)

	switch {
	case errors.As(err, &lv):
		code := CodeDuration
		if lv.Kind == LimitSize {
			code = CodeSize
		}
		return &Failure{Code: code, Message: lv.Error(), Got: lv.Got, Max: lv.Max}
	case errors.As(err, &iq):
		return &Failure{Code: CodeInvalidQuality, Message: iq.Error(), Field: string(iq.Quality)}
	case errors.As(err, &ir):
		return &Failure{Code: CodeInvalidRequest, Message: ir.Reason, Field: ir.Field}
	case errors.As(err, &qe):
		return &Failure{Code: CodeQuota, Message: qe.Error(), Got: int64(qe.Used), Max: int64(qe.Limit)}
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Failure{Code: CodeCancelled, Message: ErrCancelled.Error()}
	case errors.As(err, &ee):
		return &Failure{Code: CodeExtraction, Message: ee.Reason, Transient: ee.Transient}
	case errors.As(err, &fe):
		return &Failure{Code: CodeFetch, Message: fe.Reason, Transient: fe.Transient}
	case errors.As(err, &te):
		return &Failure{Code: CodeTrim, Message: te.Reason}
	case errors.As(err, &de):
		return &Failure{Code: CodeDispatch, Message: de.Reason}
	}
	return &Failure{Code: CodeInternal, Message: err.Error()}
}

// Err rebuilds the typed error the failure was created from.
func (f *Failure) Err() error {
	if f == nil {
		return nil
	}
	switch f.Code {
	case CodeDuration:
		return &LimitViolation{Kind: LimitDuration, Got: f.Got, Max: f.Max}
	case CodeSize:
		return &LimitViolation{Kind: LimitSize, Got: f.Got, Max: f.Max}
	case CodeInvalidQuality:
		return &InvalidQualityError{Quality: Quality(f.Field)}
	case CodeInvalidRequest:
		return &InvalidRequestError{Field: f.Field, Reason: f.Message}
	case CodeQuota:
		return &QuotaExceededError{Used: int(f.Got), Limit: int(f.Max)}
	case CodeCancelled:
		return ErrCancelled
	case CodeExtraction:
		return &ExtractionError{Reason: f.Message, Transient: f.Transient}
	case CodeFetch:
		return &FetchError{Reason: f.Message, Transient: f.Transient}
	case CodeTrim:
		return &TrimError{Reason: f.Message}
	case CodeDispatch:
		return &DispatchError{Reason: f.Message}
	}
	return errors.New(f.Message)
}
