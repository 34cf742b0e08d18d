// Package webhook relays a publish job to an external workflow runner and
// maps its synchronous JSON answer to a channel.PostResult.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"promocast/internal/channel"
	"promocast/internal/httpx"
	logx "promocast/pkg/logx"
)

// Config addresses the workflow runner.
type Config struct {
	URL string
	// Token is sent as a bearer token when non-empty.
	Token string
	HTTP  httpx.Config
}

// Job is the aggregated payload POSTed to the runner.
type Job struct {
	Platform  string            `json:"platform"`
	SessionID string            `json:"sessionId,omitempty"`
	StepID    string            `json:"stepId,omitempty"`
	DryMode   bool              `json:"dryMode"`
	Content   any               `json:"content"`
	Files     []channel.FileRef `json:"files,omitempty"`
	Hashtags  []string          `json:"hashtags,omitempty"`
}

// Publisher is safe to share between invocations; it holds no per-run state.
type Publisher struct {
	cfg    Config
	client *httpx.Client
	log    logx.Logger
}

func New(cfg Config, client *httpx.Client, log logx.Logger) *Publisher {
	if client == nil {
		client = httpx.New(cfg.HTTP)
	}
	return &Publisher{cfg: cfg, client: client, log: log.With(logx.String("comp", "webhook"))}
}

func (p *Publisher) Publish(ctx context.Context, content any, files []channel.FileRef, hashtags []string, opts channel.Options) (channel.PostResult, error) {
	if strings.TrimSpace(p.cfg.URL) == "" {
		return channel.PostResult{}, fmt.Errorf("webhook url not configured for %s", opts.Platform)
	}
	body, err := json.Marshal(Job{
		Platform:  opts.Platform,
		SessionID: opts.SessionID,
		StepID:    opts.StepID,
		DryMode:   opts.DryMode,
		Content:   content,
		Files:     files,
		Hashtags:  hashtags,
	})
	if err != nil {
		return channel.PostResult{}, fmt.Errorf("encode job: %w", err)
	}

	resp, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if p.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
		}
		return req, nil
	})
	if err != nil {
		return channel.PostResult{}, err
	}

	res := decodeResult(resp.Body)
	p.log.Debug("webhook answered",
		logx.String("platform", opts.Platform),
		logx.Int("status", resp.Status),
		logx.Bool("success", res.Success),
	)
	return res, nil
}

// decodeResult treats an empty or non-JSON 2xx body as accepted.
func decodeResult(b []byte) channel.PostResult {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return channel.PostResult{Success: true, Message: "accepted"}
	}
	var raw struct {
		Success *bool  `json:"success"`
		PostID  string `json:"postId"`
		URL     string `json:"url"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return channel.PostResult{Success: true, Message: "accepted"}
	}
	res := channel.PostResult{PostID: raw.PostID, URL: raw.URL, Message: raw.Message, Error: raw.Error}
	if raw.Success != nil {
		res.Success = *raw.Success
	} else {
		res.Success = raw.Error == ""
	}
	return res
}
