// Package automation publishes by driving a scripted browser page per
// recipient: navigate, fill, submit.
//
// Dry mode fills the form and stops before submitting. The page is left open
// so an operator can inspect or submit it by hand.
package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"promocast/internal/channel"
	"promocast/internal/errclass"
	"promocast/internal/eventbus"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

// Script tells the browser how to post on one platform. Fields other than
// URL and Submit are CSS selectors that may be left empty.
type Script struct {
	// URL is the compose page; "{recipient}" is replaced per recipient.
	URL string `json:"url"`
	// RecipientField selects a custom field as recipient instead of the base field.
	RecipientField string `json:"recipient_field,omitempty"`

	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
	Link   string `json:"link,omitempty"`
	Files  string `json:"files,omitempty"`
	Submit string `json:"submit"`
	// Done is waited for after submit to confirm the post went through.
	Done string `json:"done,omitempty"`
}

func (s Script) validate() error {
	if strings.TrimSpace(s.URL) == "" || strings.TrimSpace(s.Submit) == "" {
		return errors.New("automation script needs url and submit selector")
	}
	return nil
}

func (s Script) projector() target.Projector[string] {
	if s.RecipientField != "" {
		return target.CustomField(s.RecipientField)
	}
	return target.BaseField
}

// Browser opens pages. Implementations must be safe for concurrent use.
type Browser interface {
	Open(ctx context.Context) (Page, error)
}

// Page is the subset of browser control the scripts need.
type Page interface {
	Navigate(url string) error
	Fill(selector, value string) error
	Upload(selector string, paths []string) error
	Click(selector string) error
	WaitVisible(selector string) error
	URL() (string, error)
	Close() error
}

// Publisher is created per invocation.
type Publisher struct {
	browser Browser
	script  Script
	src     target.Source
	log     logx.Logger

	emit  eventbus.Emitter
	runID string
}

func New(browser Browser, script Script, src target.Source, log logx.Logger) *Publisher {
	return &Publisher{
		browser: browser,
		script:  script,
		src:     src,
		log:     log.With(logx.String("comp", "automation")),
		emit:    eventbus.Discard,
	}
}

func (p *Publisher) SetEventEmitter(e eventbus.Emitter) {
	if e == nil {
		e = eventbus.Discard
	}
	p.emit = e
}

func (p *Publisher) SetRunID(id string) { p.runID = id }

func (p *Publisher) Publish(ctx context.Context, content any, files []channel.FileRef, hashtags []string, opts channel.Options) (channel.PostResult, error) {
	if err := p.script.validate(); err != nil {
		return channel.PostResult{}, errclass.NoRetry(err)
	}
	post, err := channel.DecodePost(content)
	if err != nil {
		return channel.PostResult{}, errclass.NoRetry(err)
	}
	recipients, err := target.ResolveFrom[string](ctx, p.log, post.Targets, p.src, p.script.projector())
	if err != nil {
		return channel.PostResult{}, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		return channel.Failed(channel.ErrNoRecipients), nil
	}

	var (
		done  int
		first string
		last  error
	)
	for i, to := range recipients {
		if err := ctx.Err(); err != nil {
			return channel.PostResult{}, err
		}
		sub := eventbus.Step{
			Platform: opts.Platform,
			Method:   string(channel.Automation),
			StepID:   fmt.Sprintf("%s-r%d", opts.StepID, i+1),
			RunID:    p.runID,
		}
		url, err := p.runOne(ctx, sub, to, post, files, hashtags, opts.DryMode)
		if err != nil {
			last = err
			if ctx.Err() != nil {
				return channel.PostResult{}, ctx.Err()
			}
			continue
		}
		if done == 0 {
			first = url
		}
		done++
	}

	if done == 0 {
		return channel.PostResult{}, last
	}
	msg := fmt.Sprintf("submitted %d/%d", done, len(recipients))
	if opts.DryMode {
		msg = fmt.Sprintf("dry run: filled %d/%d, pages left open", done, len(recipients))
	}
	return channel.PostResult{Success: true, URL: first, Message: msg}, nil
}

type phase struct {
	name string
	run  func() error
}

// runOne drives one page. Each phase is reported as its own sub-step;
// opening the tab is part of navigate.
func (p *Publisher) runOne(ctx context.Context, sub eventbus.Step, to string, post channel.Post, files []channel.FileRef, hashtags []string, dry bool) (url string, err error) {
	var (
		page    Page
		keep    bool
		current *eventbus.Step
		began   time.Time
	)
	defer func() {
		if r := recover(); r != nil {
			err = errclass.NoRetry(fmt.Errorf("browser panic: %v", r))
			keep = false
			if current != nil {
				err = p.fail(*current, "panic", err, began)
			}
		}
		if page != nil && !keep {
			_ = page.Close()
		}
	}()

	phases := []phase{
		{"navigate", func() error {
			pg, err := p.browser.Open(ctx)
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}
			page = pg
			return page.Navigate(strings.ReplaceAll(p.script.URL, "{recipient}", to))
		}},
		{"fill", func() error { return p.fill(page, post, files, hashtags) }},
	}
	if !dry {
		phases = append(phases, phase{"submit", func() error { return p.submit(page) }})
	}

	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		step := sub
		step.StepID = sub.StepID + "-" + ph.name
		p.emit.Emit(eventbus.Started(step, ph.name+" "+to))
		current, began = &step, time.Now()
		if err := ph.run(); err != nil {
			current = nil
			return "", p.fail(step, ph.name, err, began)
		}
		current = nil
		p.emit.Emit(eventbus.Completed(step, ph.name+" "+to, time.Since(began)))
	}

	if dry {
		keep = true
		p.log.Info("dry run page left open", logx.String("platform", sub.Platform), logx.String("recipient", to))
	}
	url, _ = page.URL()
	return url, nil
}

func (p *Publisher) fail(step eventbus.Step, phase string, err error, start time.Time) error {
	err = fmt.Errorf("%s: %w", phase, err)
	code, retryable := errclass.Classify(err)
	p.emit.Emit(eventbus.Failed(step, err.Error(), code, retryable, time.Since(start)))
	p.log.Warn("automation phase failed", logx.String("platform", step.Platform), logx.String("phase", phase), logx.Err(err))
	return err
}

func (p *Publisher) fill(page Page, post channel.Post, files []channel.FileRef, hashtags []string) error {
	s := p.script
	if s.Title != "" && post.Title != "" {
		if err := page.Fill(s.Title, post.Title); err != nil {
			return err
		}
	}
	if s.Link != "" && post.Link != "" {
		if err := page.Fill(s.Link, post.Link); err != nil {
			return err
		}
	}
	if s.Body != "" {
		body := post.Text(hashtags)
		if s.Link != "" {
			body = channel.Post{Body: post.Body}.Text(hashtags)
		}
		if err := page.Fill(s.Body, body); err != nil {
			return err
		}
	}
	if s.Files != "" {
		var paths []string
		for _, f := range files {
			if f.Path != "" {
				paths = append(paths, f.Path)
			}
		}
		if len(paths) > 0 {
			if err := page.Upload(s.Files, paths); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Publisher) submit(page Page) error {
	if err := page.Click(p.script.Submit); err != nil {
		return err
	}
	if p.script.Done != "" {
		return page.WaitVisible(p.script.Done)
	}
	return nil
}
