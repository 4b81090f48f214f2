package sources

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify adapter failures.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSchemaMismatch    = errors.New("schema mismatch")
	ErrSubmission        = errors.New("search submission failed")
	ErrTimeoutExceeded   = errors.New("timeout exceeded")
	ErrJobFailed         = errors.New("search job failed")
	ErrJobNotDone        = errors.New("search job not done")
)

// Error is a classified adapter failure.
type Error struct {
	Source string
	Op     string
	Target string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Source, e.Op)
	if e.Target != "" {
		msg += fmt.Sprintf(" %q", e.Target)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a classified error. An err that is already an *Error is returned unchanged.
func NewError(source, op, target string, kind, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Source: source, Op: op, Target: target, Kind: kind, Err: err}
}

// Unavailable classifies err as a connectivity or availability failure.
func Unavailable(source, op, target string, err error) error {
	return NewError(source, op, target, ErrSourceUnavailable, err)
}

// KindOf returns the kind of err, or nil when err is not classified.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

// Label returns a short metric label for err.
func Label(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrSubmission):
		return "submission"
	case errors.Is(err, ErrTimeoutExceeded):
		return "timeout"
	case errors.Is(err, ErrJobFailed):
		return "job_failed"
	case errors.Is(err, ErrSourceUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
