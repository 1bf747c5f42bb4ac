package synth

import (
	"errors"
	"fmt"
	"time"
)

// ErrorClass categorizes a synthesis failure for retry decisions.
type ErrorClass int

const (
	// Retryable failures (server errors, timeouts, connection resets)
	// may succeed on a later attempt.
	Retryable ErrorClass = iota
	// RateLimited failures are retryable once the provider's window
	// resets; they back off on a separate, longer schedule.
	RateLimited
	// Terminal failures (bad parameters, auth) cannot succeed by
	// retrying the same call.
	Terminal
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate-limited"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// APIError is a classified failure from the synthesis provider.
type APIError struct {
	Class      ErrorClass
	StatusCode int
	RequestID  string
	// RetryAfter carries the server's retry hint when it provided one;
	// zero means no hint.
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s provider error (HTTP %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s provider error: %v", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could plausibly succeed.
func (e *APIError) Retryable() bool { return e.Class != Terminal }

// ChunkError reports the failure that aborted a job, tied to the chunk
// that caused it.
type ChunkError struct {
	Index    int
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempt(s): %v", e.Index+1, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChunkError) Unwrap() error { return e.Err }

// ErrAttemptsExhausted marks a chunk whose retry budget ran out; the
// last retryable failure is wrapped alongside it.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// classify extracts the APIError from err, treating unclassified
// errors as terminal. The adapter owns classification; anything it did
// not mark retryable is not worth more API spend.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}
