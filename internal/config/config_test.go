package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
server:
  enabled: true
  addr: 127.0.0.1:0
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./promocast.db
  busy_timeout: 2s
telemetry:
  heartbeat: 15s
publish:
  default_route: api
  step_timeout: 2m
webhook:
  linkedin:
    url: http://localhost:5678/webhook/linkedin
platforms:
  reddit:
    access_token: tok
    rate_per_sec: 0.5
  email:
    host: smtp.example.com
    port: "587"
    from: promo@example.com
automation:
  scripts:
    producthunt:
      url: https://example.com/{recipient}/new
      body: "#body"
      submit: "button[type=submit]"
scheduler:
  enabled: true
  timezone: UTC
schedules:
  - name: weekly
    schedule: "0 9 * * 1"
    batch: ./batches/weekly.yaml
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("promocast.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("Storage = %+v, want sqlite", cfg.Storage)
	}
	if cfg.Platforms.Reddit == nil || cfg.Platforms.Reddit.RatePerSec != 0.5 {
		t.Fatalf("Reddit = %+v, want rate 0.5", cfg.Platforms.Reddit)
	}
	if got := cfg.Webhook["linkedin"].URL; got != "http://localhost:5678/webhook/linkedin" {
		t.Fatalf("webhook url = %q", got)
	}
	if cfg.Automation == nil || cfg.Automation.Scripts["producthunt"].Submit == "" {
		t.Fatalf("Automation = %+v, want producthunt script", cfg.Automation)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Name != "weekly" {
		t.Fatalf("Schedules = %+v", cfg.Schedules)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		data string
	}{
		{name: "unknown yaml key", file: "c.yaml", data: "server:\n  enabled: true\n  port: 80\n"},
		{name: "unknown json key", file: "c.json", data: `{"bogus": 1}`},
		{name: "trailing json", file: "c.json", data: `{"server":{}} {"server":{}}`},
		{name: "bad yaml", file: "c.yml", data: "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.file, []byte(tt.data)); err == nil {
				t.Fatalf("Decode(%s) expected error", tt.name)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "bad duration", cfg: Config{Telemetry: TelemetryConfig{Heartbeat: "soon"}}, want: "telemetry.heartbeat"},
		{name: "negative duration", cfg: Config{Publish: PublishConfig{StepTimeout: "-1s"}}, want: "publish.step_timeout"},
		{name: "bad route", cfg: Config{Publish: PublishConfig{DefaultRoute: "carrier-pigeon"}}, want: "publish.default_route"},
		{name: "storage path", cfg: Config{Storage: &StorageConfig{Driver: "file"}}, want: "storage.path"},
		{name: "storage driver", cfg: Config{Storage: &StorageConfig{Driver: "mongo", Path: "x"}}, want: "storage.driver"},
		{name: "webhook url", cfg: Config{Webhook: map[string]WebhookConfig{"x": {}}}, want: "webhook.x.url"},
		{name: "reddit token", cfg: Config{Platforms: PlatformsConfig{Reddit: &RedditConfig{}}}, want: "access_token"},
		{name: "telegram token", cfg: Config{Platforms: PlatformsConfig{Telegram: &TelegramConfig{}}}, want: "telegram.token"},
		{name: "email from", cfg: Config{Platforms: PlatformsConfig{Email: &EmailConfig{Host: "h"}}}, want: "platforms.email"},
		{name: "script", cfg: Config{Automation: &AutomationConfig{Scripts: map[string]AutomationScript{"ph": {URL: "u"}}}}, want: "automation.scripts.ph"},
		{name: "duplicate job", cfg: Config{Schedules: []ScheduleJob{{Name: "a", Batch: "b"}, {Name: "a", Batch: "b"}}}, want: "duplicate"},
		{name: "job batch", cfg: Config{Schedules: []ScheduleJob{{Name: "a"}}}, want: "batch required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate err = %v, want mention of %q", err, tt.want)
			}
		})
	}

	var empty Config
	if err := empty.Validate(); err != nil {
		t.Fatalf("empty config Validate = %v, want nil", err)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Server: ServerConfig{Token: "a"}, Publish: PublishConfig{StepTimeout: "1m"}}
	newCfg := &Config{Server: ServerConfig{Token: "b"}, Publish: PublishConfig{StepTimeout: "2m"},
		Schedules: []ScheduleJob{{Name: "x", Schedule: "1h", Batch: "b"}}}

	sections, attrs := SummarizeChange(oldCfg, newCfg)
	want := []string{"publish", "scheduler", "server"}
	if strings.Join(sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("attrs empty")
	}

	if s, _ := SummarizeChange(newCfg, newCfg); len(s) != 0 {
		t.Fatalf("sections for identical configs = %v, want none", s)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("ParseDurationOrDefault(\"\") = %v, %v; want 3s", d, err)
	}
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("ParseDurationOrDefault(250ms) = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", time.Second); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "promocast.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	sub := m.Subscribe(4)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// rewrite until the watcher is up; invalid content must never be published
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for i := 0; ; i++ {
		select {
		case got := <-sub:
			if got.Logging.Level != "debug" {
				t.Fatalf("published level = %q, want debug", got.Logging.Level)
			}
			if m.Get().Logging.Level != "debug" {
				t.Fatalf("Get().Logging.Level = %q, want debug", m.Get().Logging.Level)
			}
			return
		case <-tick.C:
			body := `{"logging":{"level":"debug"}}`
			if i%2 == 0 {
				body = `{"publish":{"step_timeout":"never"}}`
			}
			_ = os.WriteFile(path, []byte(body), 0o644)
		case <-deadline:
			t.Fatal("no config published")
		}
	}
}
