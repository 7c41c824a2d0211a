// Package errorx defines the error taxonomy shared by the persistence
// layer. Repository lookups never surface ErrNotFound for a missing
// document (they return a null placeholder instead); the sentinel exists
// for the binary object store, where callers expect bytes, not an option.
package errorx

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Standard error variables for the persistence layer.
var (
	// ErrNotFound is returned when a binary object does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrAlreadyExists is returned when saving a binary object with
	// overwrite disabled over an existing name.
	ErrAlreadyExists = errors.New("object already exists")
	// ErrPrecondition is returned when an operation is invoked with
	// arguments that violate its contract.
	ErrPrecondition = errors.New("precondition violated")
	// ErrNotImplemented is returned by repository specializations that
	// intentionally do not support an operation.
	ErrNotImplemented = errors.New("operation not implemented")
	// ErrCursorExhausted is returned when a lazy result cursor is
	// iterated again after it has been fully consumed.
	ErrCursorExhausted = errors.New("cursor exhausted")
	// ErrMissingSession is returned when no tenant session is available
	// and the caller required an explicit one.
	ErrMissingSession = errors.New("no tenant session available")
)

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Preconditionf wraps ErrPrecondition with a formatted detail message.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPrecondition)...)
}

// AlreadyExistsf wraps ErrAlreadyExists with a formatted detail message.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrAlreadyExists)...)
}

// RetryableStatus reports whether an HTTP status code from a storage
// backend indicates a transient condition worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// IsTimeout reports whether err is a connection or request timeout.
// Timeouts are handled separately from rate limiting: they trigger a
// single client re-initialization rather than a backoff loop.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
