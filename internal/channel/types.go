package channel

import (
	"context"
	"fmt"
	"strings"

	"promocast/internal/eventbus"
)

// Kind is the mechanism by which content reaches a platform.
type Kind string

const (
	Webhook    Kind = "webhook"
	API        Kind = "api"
	Automation Kind = "automation"
)

// ParseKind accepts the canonical names plus a few aliases used in older configs.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webhook", "n8n", "relay":
		return Webhook, nil
	case "api", "direct":
		return API, nil
	case "automation", "browser", "playwright", "rod":
		return Automation, nil
	default:
		return "", fmt.Errorf("unknown channel kind %q", s)
	}
}

func (k Kind) Valid() bool { return k == Webhook || k == API || k == Automation }

// ErrNoRecipients means the target spec resolved to nobody. It is a business
// failure of the publish step, not a resolution error.
var ErrNoRecipients error = &Rejection{Code: "NO_RECIPIENTS", Reason: "no recipients resolved"}

// Rejection is a business-level refusal reported through PostResult rather
// than a call error. It carries its own code for the failed event.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string     { return r.Reason }
func (r *Rejection) ErrorCode() string { return r.Code }

// FileRef points at an attachment (image, PDF) to publish alongside content.
type FileRef struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Options are per-invocation settings.
type Options struct {
	// DryMode prepares everything but does not submit (automation leaves the
	// browser session open for manual inspection).
	DryMode   bool
	SessionID string

	// Platform and StepID identify the invocation; instrumented publishers use
	// them to tag their own sub-step events.
	Platform string
	StepID   string
}

// PostResult is what a publisher reports back.
type PostResult struct {
	Success bool   `json:"success"`
	PostID  string `json:"postId,omitempty"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Err converts an unsuccessful result into an error suitable for
// classification. It returns nil when the result is a success.
func (r PostResult) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = r.Message
	}
	switch {
	case msg == ErrNoRecipients.Error():
		return ErrNoRecipients
	case msg == "":
		return &Rejection{Code: "REJECTED", Reason: "publish rejected"}
	default:
		return &Rejection{Code: "REJECTED", Reason: msg}
	}
}

// Failed builds an unsuccessful result from err.
func Failed(err error) PostResult {
	return PostResult{Success: false, Error: err.Error()}
}

// Publisher is implemented by every channel.
type Publisher interface {
	Publish(ctx context.Context, content any, files []FileRef, hashtags []string, opts Options) (PostResult, error)
}

// Instrumentable is optionally implemented by publishers that can report
// their own sub-steps. Coarse channels (webhook) do not implement it.
type Instrumentable interface {
	SetEventEmitter(e eventbus.Emitter)
	SetRunID(id string)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, content any, files []FileRef, hashtags []string, opts Options) (PostResult, error)

func (f PublisherFunc) Publish(ctx context.Context, content any, files []FileRef, hashtags []string, opts Options) (PostResult, error) {
	return f(ctx, content, files, hashtags, opts)
}
