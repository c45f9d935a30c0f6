package store

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for the record store boundary.
var (
	// ErrUnavailable marks a transient failure: the store could not be
	// reached or answered with a retryable status. Callers queue and retry.
	ErrUnavailable = errors.New("record store unavailable")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("record not found")
)

// ValidationError marks a terminal rejection: the payload will never be
// accepted, retrying is pointless.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Message)
}

// IsTransient reports whether an error should be retried via the offline
// queue. Network-level failures and ErrUnavailable are transient; everything
// else is terminal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTerminal reports whether an error is a permanent rejection.
func IsTerminal(err error) bool {
	return err != nil && !IsTransient(err)
}

// ErrorCode extracts a short machine-readable code for audit logging.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	return "error"
}
