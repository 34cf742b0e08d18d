package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type codedErr struct{}

func (codedErr) Error() string     { return "captcha required" }
func (codedErr) ErrorCode() string { return "CAPTCHA" }

func TestClassifyTable(t *testing.T) {
	t.Parallel()
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{name: "transport tag", err: Transport(CodeConnRefused, errors.New("dial")), code: CodeConnRefused, retryable: true},
		{name: "syscall refused", err: fmt.Errorf("post: %w", refused), code: CodeConnRefused, retryable: true},
		{name: "net timeout", err: &net.OpError{Op: "read", Err: timeoutErr{}}, code: CodeTimeout, retryable: true},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), code: CodeTimeout, retryable: true},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, code: CodeHostUnknown, retryable: true},
		{name: "404", err: Status(http.StatusNotFound, ""), code: "HTTP_404", retryable: false},
		{name: "400 wrapped", err: fmt.Errorf("submit: %w", Status(400, "bad")), code: "HTTP_400", retryable: false},
		{name: "500", err: Status(500, "boom"), code: "HTTP_500", retryable: true},
		{name: "503", err: Status(http.StatusServiceUnavailable, ""), code: "HTTP_503", retryable: true},
		{name: "429", err: Status(http.StatusTooManyRequests, ""), code: "HTTP_429", retryable: true},
		{name: "429 with hint", err: RetryAfter(Status(429, ""), 3*time.Second), code: "HTTP_429", retryable: true},
		{name: "cancelled", err: fmt.Errorf("run: %w", context.Canceled), code: CodeCancelled, retryable: false},
		{name: "no-retry 503", err: NoRetry(Status(503, "")), code: "HTTP_503", retryable: false},
		{name: "coder", err: codedErr{}, code: "CAPTCHA", retryable: false},
		{name: "unknown", err: errors.New("weird"), code: CodeUnknown, retryable: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, retry := Classify(tt.err)
			if code != tt.code {
				t.Fatalf("code = %q, want %q", code, tt.code)
			}
			if retry != tt.retryable {
				t.Fatalf("retryable = %v, want %v", retry, tt.retryable)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if code, retry := Classify(nil); code != "" || retry {
		t.Fatalf("Classify(nil) = (%q, %v), want empty", code, retry)
	}
}

func TestHint(t *testing.T) {
	t.Parallel()
	d, ok := Hint(fmt.Errorf("wrapped: %w", RetryAfter(errors.New("flood"), 7*time.Second)))
	if !ok || d != 7*time.Second {
		t.Fatalf("Hint = (%v, %v), want (7s, true)", d, ok)
	}
	if _, ok := Hint(errors.New("plain")); ok {
		t.Fatal("expected no hint on plain error")
	}
}

func TestShouldRetryHTTP(t *testing.T) {
	t.Parallel()
	if !ShouldRetryHTTP(&http.Response{StatusCode: 502}, nil) {
		t.Fatal("502 should be retried")
	}
	if ShouldRetryHTTP(&http.Response{StatusCode: 403}, nil) {
		t.Fatal("403 should not be retried")
	}
	if ShouldRetryHTTP(&http.Response{StatusCode: 200}, nil) {
		t.Fatal("200 should not be retried")
	}
	if !ShouldRetryHTTP(nil, Transport(CodeTimeout, nil)) {
		t.Fatal("transport error should be retried")
	}
}
