// Package publish runs a batch of platform publishes concurrently and streams
// each step's progress to the run's telemetry session.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"promocast/internal/channel"
	"promocast/internal/eventbus"
	"promocast/internal/storage"
	logx "promocast/pkg/logx"
)

// Config is hot-reloadable.
type Config struct {
	// DefaultRoute is used for flagged platforms without a route.
	DefaultRoute channel.Kind
	// StepTimeout bounds a single platform execution; 0 means no bound.
	StepTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator. Only Registry is required.
type Deps struct {
	Registry *channel.Registry
	Sessions Sessions
	Content  ContentSource
	Audit    Auditor
	Metrics  *Metrics
	Log      logx.Logger
}

type Orchestrator struct {
	d   Deps
	log logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config, d Deps) *Orchestrator {
	o := &Orchestrator{d: d, log: d.Log.With(logx.String("comp", "publish"))}
	o.Apply(cfg)
	return o
}

func (o *Orchestrator) Apply(cfg Config) {
	if !cfg.DefaultRoute.Valid() {
		cfg.DefaultRoute = channel.API
	}
	if cfg.StepTimeout < 0 {
		cfg.StepTimeout = 0
	}
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

func (o *Orchestrator) config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

type job struct {
	platform string
	kind     channel.Kind
	content  any
}

// Publish executes req. Per-platform failures are reported in the Result and
// never returned as an error; the error is reserved for malformed batches.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (Result, error) {
	cfg := o.config()
	jobs, err := o.plan(ctx, req, cfg)
	if err != nil {
		return Result{}, err
	}

	runID := strings.TrimSpace(req.SessionID)
	if runID == "" {
		runID = uuid.NewString()
	}
	var emit eventbus.Emitter = eventbus.Discard
	if o.d.Sessions != nil {
		emit = o.d.Sessions.Session(runID)
	}

	start := time.Now()
	o.log.Info("publish batch started",
		logx.String("run", runID),
		logx.Int("platforms", len(jobs)),
		logx.Bool("dry", req.DryMode),
	)

	var (
		mu      sync.Mutex
		results = make(map[string]Outcome, len(jobs))
	)
	var g errgroup.Group
	g.SetLimit(len(jobs))
	for _, j := range jobs {
		g.Go(func() error {
			out := o.execute(ctx, emit, runID, j, req, cfg)
			mu.Lock()
			results[j.platform] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Success: true, Results: results, RunID: runID}
	for _, out := range results {
		res.Success = res.Success && out.Success
	}
	took := time.Since(start)
	o.d.Metrics.batch(res.Success)
	o.audit(ctx, req, res, took)

	fields := []logx.Field{logx.String("run", runID), logx.Duration("took", took)}
	if failed := res.Failed(); len(failed) > 0 {
		sort.Strings(failed)
		o.log.Warn("publish batch finished with failures", append(fields, logx.Strings("failed", failed))...)
	} else {
		o.log.Info("publish batch finished", fields...)
	}
	return res, nil
}

// plan validates req and fills routes and stored content.
func (o *Orchestrator) plan(ctx context.Context, req Request, cfg Config) ([]job, error) {
	var platforms []string
	for p, on := range req.Platforms {
		if on {
			platforms = append(platforms, p)
		}
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("%w: no platform selected", ErrInvalidBatch)
	}
	sort.Strings(platforms)

	jobs := make([]job, 0, len(platforms))
	for _, p := range platforms {
		kind, ok := req.Routes[p]
		if !ok || kind == "" {
			o.log.Warn("no route for platform; using default", logx.String("platform", p), logx.String("route", string(cfg.DefaultRoute)))
			kind = cfg.DefaultRoute
		}
		content, err := o.content(ctx, req, p)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job{platform: p, kind: kind, content: content})
	}
	return jobs, nil
}

func (o *Orchestrator) content(ctx context.Context, req Request, platform string) (any, error) {
	if c, ok := req.Content[platform]; ok && c != nil {
		return c, nil
	}
	if o.d.Content != nil {
		raw, ok, err := o.d.Content.GetContent(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("load content for %s: %w", platform, err)
		}
		if ok {
			return json.RawMessage(raw), nil
		}
	}
	return nil, fmt.Errorf("%w: no content for %s", ErrInvalidBatch, platform)
}

func (o *Orchestrator) audit(ctx context.Context, req Request, res Result, took time.Duration) {
	if o.d.Audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:        time.Now(),
		RunID:     res.RunID,
		Trigger:   req.Trigger,
		Platforms: len(res.Results),
		TookMS:    took.Milliseconds(),
	}
	if e.Trigger == "" {
		e.Trigger = "api"
	}
	if req.DryMode {
		e.Trigger += ":dry"
	}
	for _, out := range res.Results {
		if out.Success {
			e.OK++
		} else {
			e.Fail++
		}
	}
	if failed := res.Failed(); len(failed) > 0 {
		sort.Strings(failed)
		e.Error = "failed: " + strings.Join(failed, ", ")
	}
	if meta, err := json.Marshal(res.Results); err == nil {
		e.MetaJSON = string(meta)
	}
	// Audit must not fail a batch that already ran.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.d.Audit.AppendAudit(actx, e); err != nil {
		o.log.Warn("audit append failed", logx.String("run", res.RunID), logx.Err(err))
	}
}
