// Package httpx is the retrying HTTP client shared by the webhook channel and
// the platform API clients.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"promocast/internal/errclass"
)

const maxBody = 1 << 20

// Config tunes retries. Zero values pick defaults; MaxRetries < 0 disables retries.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func (c Config) normalize() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// Response is a fully read 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client executes requests through a failsafe retry policy. Non-2xx responses
// surface as *errclass.StatusError and are retried only when Classify says so.
type Client struct {
	hc   *http.Client
	exec failsafe.Executor[*Response]
}

func New(cfg Config) *Client {
	return NewWithHTTP(cfg, nil)
}

// NewWithHTTP lets tests inject an httptest client.
func NewWithHTTP(cfg Config, hc *http.Client) *Client {
	cfg = cfg.normalize()
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	retry := retrypolicy.NewBuilder[*Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *Response, err error) bool {
			if err == nil {
				return false
			}
			_, retryable := errclass.Classify(err)
			return retryable
		}).
		ReturnLastFailure().
		Build()
	return &Client{hc: hc, exec: failsafe.With[*Response](retry)}
}

// Do runs build+send with retries. build is called per attempt so request
// bodies are never reused.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	return c.exec.WithContext(ctx).Get(func() (*Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, errclass.NoRetry(err)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := errclass.Status(resp.StatusCode, strings.TrimSpace(string(body)))
			if d, ok := retryAfter(resp.Header); ok {
				serr = errclass.RetryAfter(serr, d)
			}
			return nil, serr
		}
		return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
	})
}

func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t), true
	}
	return 0, false
}
