// Package errs defines the error kinds shared across every component
// (spec.md §7): Skipped, ValidationError, PolicyDenied, Timeout,
// RetryableTransport, NonRetryableTransport, DependencyUnavailable,
// Conflict, Internal. Handlers classify with errors.Is/errors.As rather
// than string matching or ad-hoc exception ladders (spec.md §9).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrSkipped marks a no-op result, not a failure (e.g. translation
	// disabled, word count below minimum).
	ErrSkipped = errors.New("skipped")

	// ErrPolicyDenied is returned when rate limiting, role, delegated
	// grants, or a feature flag rejects an action.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrTimeout marks a deadline exceeded on a module invocation, session,
	// or outbound call.
	ErrTimeout = errors.New("timeout")

	// ErrRetryableTransport marks a transport failure or retryable HTTP
	// status (408/429/500/502/503/504) that a stream consumer should retry.
	ErrRetryableTransport = errors.New("retryable transport error")

	// ErrNonRetryableTransport marks a transport/HTTP failure that must not
	// be retried (any other 4xx).
	ErrNonRetryableTransport = errors.New("non-retryable transport error")

	// ErrDependencyUnavailable marks a mandatory dependency (database,
	// cache, stream backend) unreachable.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrConflict marks a uniqueness violation (e.g. alias already exists).
	ErrConflict = errors.New("conflict")

	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
)

// ValidationError wraps field-specific validation failures, surfaced to
// callers with per-field detail (spec.md §7).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError constructs a field-scoped validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Code maps an error kind to the HTTP boundary's conventional status code
// (spec.md §6: `{success:false, error:{message, code, details?, timestamp}}`).
func Code(err error) int {
	switch {
	case err == nil:
		return 200
	case IsValidationError(err):
		return 400
	case errors.Is(err, ErrPolicyDenied):
		return 403
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrDependencyUnavailable):
		return 503
	case errors.Is(err, ErrTimeout):
		return 504
	default:
		return 500
	}
}
