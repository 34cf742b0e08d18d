package app

import (
	"fmt"
	"strings"
	"time"

	"promocast/internal/channel"
	"promocast/internal/channel/automation"
	"promocast/internal/config"
	"promocast/internal/eventbus"
	"promocast/internal/httpapi"
	"promocast/internal/publish"
	"promocast/internal/scheduler"
	"promocast/internal/storage"
	logx "promocast/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig returns ok=false when the store should stay in memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "none", "memory", "mem":
		return storage.Config{}, false, nil
	case "file":
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}, true, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTelemetryConfig(cfg *config.Config) (eventbus.Config, error) {
	hb, err := config.ParseDurationOrDefault("telemetry.heartbeat", cfg.Telemetry.Heartbeat, 30*time.Second)
	if err != nil {
		return eventbus.Config{}, err
	}
	ttl, err := config.ParseDurationField("telemetry.session_ttl", cfg.Telemetry.SessionTTL)
	if err != nil {
		return eventbus.Config{}, err
	}
	return eventbus.Config{Heartbeat: hb, SessionTTL: ttl}, nil
}

func mapPublishConfig(cfg *config.Config) (publish.Config, error) {
	route := channel.API
	if r := strings.TrimSpace(cfg.Publish.DefaultRoute); r != "" {
		k, err := channel.ParseKind(r)
		if err != nil {
			return publish.Config{}, fmt.Errorf("publish.default_route: %w", err)
		}
		route = k
	}
	st, err := config.ParseDurationField("publish.step_timeout", cfg.Publish.StepTimeout)
	if err != nil {
		return publish.Config{}, err
	}
	return publish.Config{DefaultRoute: route, StepTimeout: st}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	s := cfg.Server
	read, err := config.ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 15*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", s.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpapi.Config{}, err
	}
	addr := strings.TrimSpace(s.Addr)
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	return httpapi.Config{
		Addr:          addr,
		Token:         strings.TrimSpace(s.Token),
		AllowInsecure: s.AllowInsecure,
		Pprof:         s.Pprof,
		ReadTimeout:   read,
		IdleTimeout:   idle,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	jobs := make([]scheduler.Job, 0, len(cfg.Schedules))
	for _, j := range cfg.Schedules {
		jobs = append(jobs, scheduler.Job{
			Name:     strings.TrimSpace(j.Name),
			Schedule: j.Schedule,
			Batch:    j.Batch,
			DryMode:  j.DryMode,
			Disabled: j.Disabled,
		})
	}
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone), Jobs: jobs}
}

// mapRodConfig returns ok=false when automation is not configured.
func mapRodConfig(cfg *config.Config) (automation.RodConfig, bool, error) {
	a := cfg.Automation
	if a == nil || len(a.Scripts) == 0 {
		return automation.RodConfig{}, false, nil
	}
	pt, err := config.ParseDurationField("automation.page_timeout", a.PageTimeout)
	if err != nil {
		return automation.RodConfig{}, false, err
	}
	headless := true
	if a.Headless != nil {
		headless = *a.Headless
	}
	return automation.RodConfig{
		ControlURL:  strings.TrimSpace(a.ControlURL),
		Bin:         strings.TrimSpace(a.Bin),
		Headless:    headless,
		PageTimeout: pt,
	}, true, nil
}
