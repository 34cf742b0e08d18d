package errclass

import (
	"errors"
	"fmt"
	"time"
)

// Transport codes recognised by Classify.
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeTimeout     = "ETIMEDOUT"
	CodeHostUnknown = "ENOTFOUND"
	CodeConnReset   = "ECONNRESET"

	CodeCancelled = "CANCELLED"
	CodeUnknown   = "UNKNOWN_ERROR"
)

// TransportError is a network-level failure tagged with a transport code.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "transport: " + e.Code
	}
	return fmt.Sprintf("transport %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err with a transport code.
func Transport(code string, err error) error {
	return &TransportError{Code: code, Err: err}
}

// StatusError is an HTTP-like status returned by a downstream platform.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// Status builds a StatusError. body is truncated to keep log lines small.
func Status(code int, body string) error {
	if len(body) > 300 {
		body = body[:297] + "..."
	}
	return &StatusError{Status: code, Body: body}
}

// NoRetry marks an error as non-retryable regardless of its other traits.
//
// Example:
//
//	return errclass.NoRetry(fmt.Errorf("bad credentials: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// RetryAfter attaches a suggested delay before retrying (e.g. a Retry-After
// header or a flood-control hint).
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// Coder lets an error name its own classification code.
type Coder interface {
	ErrorCode() string
}
