package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a stickerjar error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrInvariantViolation ErrorCode = "INVARIANT_VIOLATION" // 409
	ErrRemoteFailure      ErrorCode = "REMOTE_FAILURE"      // 502
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// JarError represents a structured error with code, status, and details.
type JarError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *JarError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *JarError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *JarError {
	return &JarError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing sticker or jar.
func NewNotFound(kind, identifier string) *JarError {
	return &JarError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInvariantViolation creates a 409 error for operations that are
// illegal in the current state (commit without prepare, archive while
// archiving). Callers treat it as a no-op.
func NewInvariantViolation(msg string) *JarError {
	return &JarError{
		Code:    ErrInvariantViolation,
		Status:  409,
		Message: msg,
	}
}

// NewRemoteFailure creates a 502 error for a failed remote call
// (upload, analysis, report, archive commit). No retry is implied.
func NewRemoteFailure(op string, err error) *JarError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &JarError{
		Code:    ErrRemoteFailure,
		Status:  502,
		Message: msg,
		Details: map[string]any{"operation": op},
		Err:     err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *JarError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &JarError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a JarError with the given code.
func Is(err error, code ErrorCode) bool {
	var jErr *JarError
	if stderrors.As(err, &jErr) {
		return jErr.Code == code
	}
	return false
}

// IsRemote reports whether err is a transient remote failure.
func IsRemote(err error) bool {
	return Is(err, ErrRemoteFailure)
}
