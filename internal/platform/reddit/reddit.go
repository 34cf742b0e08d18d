// Package reddit submits posts to subreddits through the OAuth API.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"promocast/internal/channel/api"
	"promocast/internal/errclass"
	"promocast/internal/httpx"
	"promocast/internal/target"
)

const defaultBaseURL = "https://oauth.reddit.com"

type Config struct {
	BaseURL     string
	AccessToken string
	UserAgent   string
	HTTP        httpx.Config
}

// Client implements api.Poster. Recipients are subreddit names without the r/ prefix.
type Client struct {
	cfg  Config
	http *httpx.Client
}

func New(cfg Config, hc *httpx.Client) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("reddit access token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "promocast/1.0"
	}
	if hc == nil {
		hc = httpx.New(cfg.HTTP)
	}
	return &Client{cfg: cfg, http: hc}, nil
}

func (c *Client) Recipient(t target.Target) (string, bool) {
	v, ok := target.BaseField(t)
	if !ok {
		return "", false
	}
	v = strings.TrimPrefix(strings.TrimPrefix(v, "/"), "r/")
	return v, v != ""
}

type submitResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"data"`
	} `json:"json"`
}

func (c *Client) Send(ctx context.Context, to string, msg api.Message) (api.Delivery, error) {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("sr", to)
	form.Set("title", submissionTitle(msg))
	if msg.Post.Link != "" && strings.TrimSpace(msg.Post.Body) == "" {
		form.Set("kind", "link")
		form.Set("url", msg.Post.Link)
	} else {
		form.Set("kind", "self")
		form.Set("text", msg.Text)
	}
	if flair, ok := msg.Post.Extra["flairId"].(string); ok && flair != "" {
		form.Set("flair_id", flair)
	}
	body := form.Encode()

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/submit", strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return api.Delivery{}, err
	}

	var out submitResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return api.Delivery{}, errclass.NoRetry(fmt.Errorf("decode submit response: %w", err))
	}
	if len(out.JSON.Errors) > 0 {
		return api.Delivery{}, submitError(out.JSON.Errors)
	}
	return api.Delivery{PostID: out.JSON.Data.ID, URL: out.JSON.Data.URL}, nil
}

func submissionTitle(msg api.Message) string {
	if t := strings.TrimSpace(msg.Post.Title); t != "" {
		return t
	}
	line, _, _ := strings.Cut(strings.TrimSpace(msg.Post.Body), "\n")
	if len(line) > 300 {
		line = line[:300]
	}
	return line
}

// SubmitError is a validation failure reported in a 200 response body
// (e.g. RATELIMIT, SUBREDDIT_NOEXIST).
type SubmitError struct {
	Code   string
	Detail string
}

func (e *SubmitError) Error() string     { return "reddit: " + e.Code + ": " + e.Detail }
func (e *SubmitError) ErrorCode() string { return "REDDIT_" + e.Code }

func submitError(errs [][]any) error {
	first := errs[0]
	e := &SubmitError{Code: "UNKNOWN"}
	if len(first) > 0 {
		e.Code = fmt.Sprint(first[0])
	}
	if len(first) > 1 {
		e.Detail = fmt.Sprint(first[1])
	}
	if e.Code == "RATELIMIT" {
		return errclass.RetryAfter(e, 0)
	}
	return e
}
