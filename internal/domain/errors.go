package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates the session id resolves to nothing.
	ErrSessionNotFound = errors.New("live session not found")

	// ErrInvalidState indicates a lifecycle action was attempted from a
	// state that forbids it (e.g. start on a Live session).
	ErrInvalidState = errors.New("invalid session state for this action")

	// ErrNotSessionOwner indicates the actor does not own the session.
	ErrNotSessionOwner = errors.New("actor is not the session owner")

	// ErrMaxActiveSessions indicates the owner hit the concurrent live
	// session limit.
	ErrMaxActiveSessions = errors.New("maximum concurrent live sessions reached")
)

// ValidationError indicates a request failed a domain validation rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for one request field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// UpstreamError wraps a failed call to an external collaborator (encoder,
// entitlement service, signer). The triggering transition is rolled back and
// the caller may retry the action.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// NewUpstreamError wraps err as an upstream failure for operation op.
func NewUpstreamError(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an upstream failure.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
