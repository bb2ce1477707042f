package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrOperationFailed     = errors.New("operation failed")
	ErrUploadFailed        = errors.New("upload failed")
	ErrNotReady            = errors.New("job not ready")
	ErrSyncUnavailable     = errors.New("sync unavailable")
	ErrSessionClosed       = errors.New("session closed")
)

// ValidationError reports a client-side input problem caught before any
// network call.
type ValidationError struct {
	Field   string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PreconditionError lists the inputs that must be provided before a job can
// be submitted.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return "missing required input: " + strings.Join(e.Missing, ", ")
}

func (e *PreconditionError) Unwrap() error { return ErrValidation }

// InsufficientCreditsError carries the numbers needed by an upsell prompt.
type InsufficientCreditsError struct {
	Required int
	Balance  int
}

func (e *InsufficientCreditsError) Error() string {
	if e.Required == 0 && e.Balance == 0 {
		return ErrInsufficientCredits.Error()
	}
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
