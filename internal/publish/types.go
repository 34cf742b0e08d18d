package publish

import (
	"context"
	"encoding/json"
	"errors"

	"promocast/internal/channel"
	"promocast/internal/eventbus"
	"promocast/internal/storage"
)

var (
	// ErrInvalidBatch is returned for contract violations only: no platform
	// flagged, or a flagged platform without content.
	ErrInvalidBatch = errors.New("invalid publish batch")
	// ErrChannelUnsupported is reported per platform when the registry has no
	// publisher for (platform, kind).
	ErrChannelUnsupported = errors.New("channel not supported")
)

// Request is one publish batch.
type Request struct {
	Platforms map[string]bool         `json:"platforms" yaml:"platforms"`
	Content   map[string]any          `json:"content" yaml:"content"`
	Files     []channel.FileRef       `json:"files,omitempty" yaml:"files,omitempty"`
	Hashtags  []string                `json:"hashtags,omitempty" yaml:"hashtags,omitempty"`
	Routes    map[string]channel.Kind `json:"routes,omitempty" yaml:"routes,omitempty"`
	SessionID string                  `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`
	DryMode   bool                    `json:"dryMode,omitempty" yaml:"dryMode,omitempty"`

	// Trigger names the caller in the audit log ("http", "cli", "schedule:<name>").
	Trigger string `json:"-" yaml:"-"`
}

// Outcome is one platform's result inside a batch. Error is set only when
// Success is false; a partial success lists what failed in Message.
type Outcome struct {
	Success bool         `json:"success"`
	PostID  string       `json:"postId,omitempty"`
	URL     string       `json:"url,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
	Channel channel.Kind `json:"channel"`
}

// Result is the batch answer. Success is the AND of every outcome.
type Result struct {
	Success bool               `json:"success"`
	Results map[string]Outcome `json:"results"`
	RunID   string             `json:"runId"`
}

// Failed lists the platforms whose outcome was unsuccessful.
func (r Result) Failed() []string {
	var out []string
	for p, o := range r.Results {
		if !o.Success {
			out = append(out, p)
		}
	}
	return out
}

// Sessions hands out the telemetry bus for a run.
type Sessions interface {
	Session(id string) *eventbus.Bus
}

// ContentSource supplies stored content for platforms the request omits.
type ContentSource interface {
	GetContent(ctx context.Context, platform string) (json.RawMessage, bool, error)
}

// Auditor records one entry per batch.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}
