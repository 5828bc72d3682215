// Package provider holds the error vocabulary shared by all remote provider
// implementations (chat completion, audio generation, transcription).
//
// Providers translate transport-specific failures into a [*StatusError] so
// that callers can classify them with [errors.Is] against [ErrUnauthorized]
// and [ErrRateLimited] without importing any vendor SDK.
package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches a [*StatusError] carrying HTTP 401.
	ErrUnauthorized = errors.New("provider: unauthorized")

	// ErrRateLimited matches a [*StatusError] carrying HTTP 429.
	ErrRateLimited = errors.New("provider: rate limited")
)

// StatusError is a failed remote request that produced an HTTP status.
type StatusError struct {
	// Provider names the backend that failed (e.g. "openai").
	Provider string

	// StatusCode is the HTTP status returned by the service.
	StatusCode int

	// Message is the service-supplied error message, if any.
	Message string

	// Err is the underlying SDK or transport error. May be nil.
	Err error
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel matching e's status code.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// StatusCode extracts the HTTP status from err, or 0 when err does not wrap
// a [*StatusError].
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
