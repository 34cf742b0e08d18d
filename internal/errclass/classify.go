// Package errclass maps heterogeneous channel errors onto a {code, retryable}
// pair. The result is advisory: nothing in promocast retries on its own, the
// pair is published with telemetry for an external retry policy.
package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Classify returns a stable code and whether retrying could plausibly succeed.
//
// Priority:
//  1. transport codes (connection refused, timeout, unknown host) are retryable
//  2. status 5xx is retryable
//  3. status 429 is retryable
//  4. any other 4xx is not
//  5. anything else is UNKNOWN_ERROR and not retryable
//
// NoRetry overrides retryability; caller cancellation is CANCELLED.
func Classify(err error) (code string, retryable bool) {
	if err == nil {
		return "", false
	}
	code, retryable = classify(err)
	if IsNoRetry(err) {
		retryable = false
	}
	return code, retryable
}

func classify(err error) (string, bool) {
	if errors.Is(err, context.Canceled) {
		return CodeCancelled, false
	}

	if code, ok := transportCode(err); ok {
		return code, true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Status)
	}

	var ra RetryAfterError
	if errors.As(err, &ra) {
		return "RETRY_AFTER", true
	}

	var c Coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.ErrorCode()); code != "" {
			return code, false
		}
	}
	return CodeUnknown, false
}

func classifyStatus(status int) (string, bool) {
	code := fmt.Sprintf("HTTP_%d", status)
	switch {
	case status >= 500 && status < 600:
		return code, true
	case status == http.StatusTooManyRequests:
		return code, true
	case status >= 400 && status < 500:
		return code, false
	default:
		return code, false
	}
}

func transportCode(err error) (string, bool) {
	var te *TransportError
	if errors.As(err, &te) && te.Code != "" {
		return te.Code, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, true
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused, true
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset, true
	case errors.Is(err, syscall.ETIMEDOUT):
		return CodeTimeout, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CodeTimeout, true
		}
		return CodeHostUnknown, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CodeTimeout, true
	}
	return "", false
}

// Hint returns the suggested retry delay carried by err, if any.
func Hint(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter(), true
	}
	return 0, false
}

// FromResponse converts a non-2xx response into a StatusError. The body is
// not read; callers that want it in the message should pass it explicitly via Status.
func FromResponse(resp *http.Response) error {
	if resp == nil {
		return nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Status: resp.StatusCode}
}

// ShouldRetryHTTP is a failsafe-go HandleIf predicate built on Classify.
func ShouldRetryHTTP(resp *http.Response, err error) bool {
	if err != nil {
		_, retry := Classify(err)
		return retry
	}
	if resp == nil {
		return true
	}
	_, retry := classifyStatus(resp.StatusCode)
	return retry && resp.StatusCode >= 400
}
