package config

import (
	"errors"
	"fmt"
	"strings"

	"promocast/internal/channel"
)

// Validate checks the static shape of cfg: durations, enums and required
// credentials. Checks that need live components (cron parsing, storage
// open) run in the app validator.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	dur("server.read_timeout", c.Server.ReadTimeout)
	dur("server.idle_timeout", c.Server.IdleTimeout)
	dur("telemetry.heartbeat", c.Telemetry.Heartbeat)
	dur("telemetry.session_ttl", c.Telemetry.SessionTTL)
	dur("publish.step_timeout", c.Publish.StepTimeout)

	if r := strings.TrimSpace(c.Publish.DefaultRoute); r != "" {
		if _, err := channel.ParseKind(r); err != nil {
			errs = append(errs, fmt.Errorf("publish.default_route: %w", err))
		}
	}

	if c.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "none", "memory", "mem":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(c.Storage.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path required for driver %q", c.Storage.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
		}
		dur("storage.busy_timeout", c.Storage.BusyTimeout)
	}

	for p, w := range c.Webhook {
		if strings.TrimSpace(w.URL) == "" {
			errs = append(errs, fmt.Errorf("webhook.%s.url required", p))
		}
		dur("webhook."+p+".timeout", w.Timeout)
	}

	if r := c.Platforms.Reddit; r != nil {
		if strings.TrimSpace(r.AccessToken) == "" {
			errs = append(errs, errors.New("platforms.reddit.access_token required"))
		}
		dur("platforms.reddit.timeout", r.Timeout)
	}
	if e := c.Platforms.Email; e != nil {
		if strings.TrimSpace(e.Host) == "" || strings.TrimSpace(e.From) == "" {
			errs = append(errs, errors.New("platforms.email: host and from required"))
		}
	}
	if t := c.Platforms.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" {
			errs = append(errs, errors.New("platforms.telegram.token required"))
		}
		dur("platforms.telegram.timeout", t.Timeout)
	}

	if a := c.Automation; a != nil {
		dur("automation.page_timeout", a.PageTimeout)
		for p, s := range a.Scripts {
			if strings.TrimSpace(s.URL) == "" || strings.TrimSpace(s.Submit) == "" {
				errs = append(errs, fmt.Errorf("automation.scripts.%s: url and submit required", p))
			}
		}
	}

	seen := map[string]bool{}
	for i, j := range c.Schedules {
		name := strings.TrimSpace(j.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("schedules[%d].name required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("schedules[%d]: duplicate name %q", i, name))
		}
		seen[name] = true
		if strings.TrimSpace(j.Batch) == "" {
			errs = append(errs, fmt.Errorf("schedules[%d].batch required", i))
		}
	}

	return errors.Join(errs...)
}
