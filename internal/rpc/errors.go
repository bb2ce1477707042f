package rpc

import (
	"fmt"

	"genclient/internal/domain"
)

// Error codes returned by the server in the error envelope.
const (
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeTooManyRequests     = "TOO_MANY_REQUESTS"
	CodeInternal            = "INTERNAL_SERVER_ERROR"
)

// OperationError is the normalized transport failure for one procedure: the
// network failed, the server answered non-2xx without a usable error body, or
// the response body could not be decoded.
type OperationError struct {
	Op     string
	Status int
	Err    error
}

func (e *OperationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rpc: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("rpc: %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() []error {
	return []error{domain.ErrOperationFailed, e.Err}
}

// RemoteError is an application error reported by the server with a code.
type RemoteError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: %s: %s (%s)", e.Op, e.Message, e.Code)
}

func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeInsufficientCredits:
		return domain.ErrInsufficientCredits
	case CodeBadRequest:
		return domain.ErrValidation
	case CodeNotFound:
		return domain.ErrNotFound
	default:
		return domain.ErrOperationFailed
	}
}
