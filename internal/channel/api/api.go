// Package api publishes through direct platform calls, one per resolved
// recipient, with a rate limiter between calls.
package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"promocast/internal/channel"
	"promocast/internal/errclass"
	"promocast/internal/eventbus"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

// Message is what a Poster sends to one recipient.
type Message struct {
	Post     channel.Post
	Text     string
	Files    []channel.FileRef
	Hashtags []string
	DryMode  bool
}

// Delivery identifies what a platform created for one recipient.
type Delivery struct {
	PostID string
	URL    string
}

// Poster is a platform client.
type Poster interface {
	// Recipient projects a target into this platform's recipient identifier.
	Recipient(t target.Target) (string, bool)
	Send(ctx context.Context, to string, msg Message) (Delivery, error)
}

// Config tunes the per-recipient loop.
type Config struct {
	// RatePerSec bounds calls to the platform; zero means unlimited.
	RatePerSec float64
	// StopOnError aborts the remaining recipients after the first failure.
	StopOnError bool
}

// Publisher is created per invocation: it holds the emitter and run id set by
// the orchestrator.
type Publisher struct {
	poster  Poster
	src     target.Source
	limiter *rate.Limiter
	cfg     Config
	log     logx.Logger

	emit  eventbus.Emitter
	runID string
}

// New builds a publisher. limiter may be shared between invocations for the
// same platform so concurrent batches respect one budget.
func New(poster Poster, src target.Source, limiter *rate.Limiter, cfg Config, log logx.Logger) *Publisher {
	return &Publisher{
		poster:  poster,
		src:     src,
		limiter: limiter,
		cfg:     cfg,
		log:     log.With(logx.String("comp", "api")),
		emit:    eventbus.Discard,
	}
}

// NewLimiter returns nil (unlimited) for rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (p *Publisher) SetEventEmitter(e eventbus.Emitter) {
	if e == nil {
		e = eventbus.Discard
	}
	p.emit = e
}

func (p *Publisher) SetRunID(id string) { p.runID = id }

func (p *Publisher) Publish(ctx context.Context, content any, files []channel.FileRef, hashtags []string, opts channel.Options) (channel.PostResult, error) {
	post, err := channel.DecodePost(content)
	if err != nil {
		return channel.PostResult{}, errclass.NoRetry(err)
	}
	recipients, err := target.ResolveFrom[string](ctx, p.log, post.Targets, p.src, p.poster.Recipient)
	if err != nil {
		return channel.PostResult{}, fmt.Errorf("resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		p.log.Warn("no recipients resolved", logx.String("platform", opts.Platform), logx.String("mode", string(post.Targets.Mode)))
		return channel.Failed(channel.ErrNoRecipients), nil
	}

	msg := Message{Post: post, Text: post.Text(hashtags), Files: files, Hashtags: hashtags, DryMode: opts.DryMode}
	var (
		sent   int
		failed []string
		first  Delivery
		last   error
	)
	for i, to := range recipients {
		if err := ctx.Err(); err != nil {
			return channel.PostResult{}, err
		}
		if p.limiter != nil {
			// Wait fails early when the next slot lies past the deadline;
			// the caller's context ends the step either way.
			if err := p.limiter.Wait(ctx); err != nil {
				return channel.PostResult{}, fmt.Errorf("rate limit: %v: %w", err, context.Canceled)
			}
		}

		sub := eventbus.Step{
			Platform: opts.Platform,
			Method:   string(channel.API),
			StepID:   fmt.Sprintf("%s-r%d", opts.StepID, i+1),
			RunID:    p.runID,
		}
		p.emit.Emit(eventbus.Started(sub, "send to "+to))
		start := time.Now()

		d, err := p.send(ctx, to, msg)
		if err != nil {
			code, retryable := errclass.Classify(err)
			if ctx.Err() != nil {
				code, retryable = errclass.CodeCancelled, false
			}
			p.emit.Emit(eventbus.Failed(sub, err.Error(), code, retryable, time.Since(start)))
			p.log.Warn("recipient send failed", logx.String("platform", opts.Platform), logx.String("to", to), logx.String("code", code), logx.Err(err))
			failed = append(failed, to)
			last = err
			if ctx.Err() != nil {
				return channel.PostResult{}, ctx.Err()
			}
			if p.cfg.StopOnError {
				break
			}
			continue
		}
		p.emit.Emit(eventbus.Completed(sub, "sent to "+to, time.Since(start)))
		if sent == 0 {
			first = d
		}
		sent++
	}

	summary := fmt.Sprintf("sent %d/%d", sent, len(recipients))
	if opts.DryMode {
		summary = "dry run: " + summary
	}
	if sent == 0 {
		return channel.PostResult{}, fmt.Errorf("%s: %w", summary, last)
	}
	if len(failed) > 0 {
		summary += "; failed: " + strings.Join(failed, ", ")
	}
	return channel.PostResult{Success: true, PostID: first.PostID, URL: first.URL, Message: summary}, nil
}

func (p *Publisher) send(ctx context.Context, to string, msg Message) (d Delivery, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errclass.NoRetry(fmt.Errorf("poster panic: %v", r))
		}
	}()
	if msg.DryMode {
		return Delivery{}, nil
	}
	return p.poster.Send(ctx, to, msg)
}
