// Package app wires config, storage, channels, the orchestrator and the
// outer surfaces (HTTP, scheduler) into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"promocast/internal/channel"
	"promocast/internal/channel/automation"
	"promocast/internal/config"
	"promocast/internal/eventbus"
	"promocast/internal/httpapi"
	"promocast/internal/publish"
	"promocast/internal/runtime/supervisor"
	"promocast/internal/scheduler"
	"promocast/internal/storage"
	logx "promocast/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	sessions *eventbus.Registry
	channels *channel.Registry
	browser  *automation.RodBrowser
	metrics  *prometheus.Registry

	orch  *publish.Orchestrator
	http  *httpapi.Service
	sched *scheduler.Service

	httpOn  bool
	schedOn bool
}

// New loads the config file and builds every component without starting
// background work. One-off commands can call Publish right away.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, log: log, logs: logSvc}
	if err := a.build(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	sc, persistent, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if persistent {
		st, err := storage.Open(sc, a.log)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		a.store = storage.NewMemory(a.log.With(logx.String("comp", "storage")))
	}

	tc, err := mapTelemetryConfig(cfg)
	if err != nil {
		return err
	}
	a.sessions = eventbus.NewRegistry(tc, a.log)

	if rc, ok, err := mapRodConfig(cfg); err != nil {
		return err
	} else if ok {
		a.browser = automation.NewRod(rc, a.log)
	}
	a.channels, err = buildChannels(cfg, a.channelDeps())
	if err != nil {
		return err
	}

	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pc, err := mapPublishConfig(cfg)
	if err != nil {
		return err
	}
	a.orch = publish.New(pc, publish.Deps{
		Registry: a.channels,
		Sessions: a.sessions,
		Content:  a.store,
		Audit:    a.store,
		Metrics:  publish.NewMetrics(a.metrics),
		Log:      a.log,
	})

	hc, err := mapHTTPConfig(cfg)
	if err != nil {
		return err
	}
	a.http = httpapi.New(hc, httpapi.Deps{
		Publisher: a.orch,
		Sessions:  a.sessions,
		Store:     a.store,
		Channels:  a.channels,
		Gatherer:  a.metrics,
		Metrics:   a.metrics,
		Runtime:   a.runtimeStats,
		Log:       a.log,
	})

	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.orch, a.batchLoader(), a.log)
	if err := a.sched.Validate(mapSchedulerConfig(cfg)); err != nil {
		return err
	}

	a.log.Info("components ready",
		logx.Strings("channels", a.channels.Routes()),
		logx.Bool("http", cfg.Server.Enabled),
		logx.Int("schedules", len(cfg.Schedules)),
	)
	return nil
}

func (a *App) channelDeps() channelDeps {
	d := channelDeps{src: a.store, log: a.log}
	if a.browser != nil {
		d.browser = a.browser
	}
	return d
}

// batchLoader resolves relative batch paths against the config directory.
func (a *App) batchLoader() scheduler.Loader {
	base := filepath.Dir(a.cfgm.Path())
	return func(p string) (publish.Request, error) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		return publish.LoadRequest(p)
	}
}

func (a *App) runtimeStats() any {
	if a.sup == nil {
		return nil
	}
	return a.sup.Snapshot()
}

func (a *App) Config() *config.Config              { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger                 { return a.log }
func (a *App) Store() storage.Store                { return a.store }
func (a *App) Channels() *channel.Registry         { return a.channels }
func (a *App) Orchestrator() *publish.Orchestrator { return a.orch }
func (a *App) Scheduler() *scheduler.Service       { return a.sched }

// HTTPAddr is the bound listener address, or "" when the server is off.
func (a *App) HTTPAddr() string { return a.http.Addr() }

// Publish runs one batch through the orchestrator.
func (a *App) Publish(ctx context.Context, req publish.Request) (publish.Result, error) {
	return a.orch.Publish(ctx, req)
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the HTTP server, the scheduler, telemetry upkeep and the
// config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		if err := a.sched.Validate(mapSchedulerConfig(cfg)); err != nil {
			return err
		}
		if _, err := mapHTTPConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := buildChannels(cfg, a.channelDeps())
		return err
	})

	cfg := a.cfgm.Get()
	if cfg.Server.Enabled {
		if err := a.http.Start(c); err != nil {
			return err
		}
		a.httpOn = true
	}
	if cfg.Scheduler.Enabled {
		a.sched.Start(c)
		a.schedOn = true
	}

	a.sup.Go("telemetry.upkeep", a.sessions.Run)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						drained = true
					}
				}
				a.apply(c, last, next)
				last = next
			}
		}
	})

	a.log.Info("app started")
	return nil
}

// apply pushes a validated config into the running components.
func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		a.logs.Apply(mapLogConfig(next))
	}
	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed("telemetry") {
		if tc, err := mapTelemetryConfig(next); err == nil {
			a.sessions.Apply(tc)
		}
	}
	if changed("publish") {
		if pc, err := mapPublishConfig(next); err == nil {
			a.orch.Apply(pc)
		}
	}
	if changed("webhook") || changed("platforms") || changed("automation") {
		if changed("automation") && a.browser == nil {
			a.log.Warn("automation enabled via config; restart required to launch the browser")
		}
		reg, err := buildChannels(next, a.channelDeps())
		if err != nil {
			a.log.Warn("invalid channel config; keeping previous", logx.Err(err))
		} else {
			a.channels.Replace(reg)
			a.log.Info("channels reloaded", logx.Strings("routes", a.channels.Routes()))
		}
	}
	if changed("server") {
		a.applyHTTP(ctx, next)
	}
	if changed("scheduler") {
		a.sched.Apply(mapSchedulerConfig(next))
		switch {
		case a.schedOn && !next.Scheduler.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
			a.schedOn = false
		case !a.schedOn && next.Scheduler.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
			a.schedOn = true
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) applyHTTP(ctx context.Context, next *config.Config) {
	hc, err := mapHTTPConfig(next)
	if err != nil {
		a.log.Warn("invalid server config; keeping previous", logx.Err(err))
		return
	}
	switch {
	case a.httpOn && !next.Server.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.http.Stop(stopCtx)
		cancel()
		a.httpOn = false
		_ = a.http.Reconfigure(ctx, hc)
	case !a.httpOn && next.Server.Enabled:
		_ = a.http.Reconfigure(ctx, hc)
		if err := a.http.Start(ctx); err != nil {
			a.log.Warn("http start failed", logx.Err(err))
			return
		}
		a.httpOn = true
	default:
		if err := a.http.Reconfigure(ctx, hc); err != nil {
			a.log.Warn("http reconfigure failed", logx.Err(err))
		}
	}
}

// Stop shuts everything down in reverse dependency order. Each step is
// bounded so one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, limit time.Duration, fn func(context.Context)) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					a.log.Warn("stop step panicked", logx.String("name", name), logx.Any("panic", r))
				}
			}()
			fn(stepCtx)
		}()
		select {
		case <-done:
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) { a.sched.Stop(c) })
	step("http", 3*time.Second, func(c context.Context) { a.http.Stop(c) })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })
	}
	err := a.close()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// close releases resources held without a running supervisor.
func (a *App) close() error {
	var errs []error
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("browser: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases resources for one-off commands that never called Start.
func (a *App) Close() error {
	err := a.close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
