package config

import (
	"hash/fnv"
	"reflect"
	"sort"
	"strings"

	logx "promocast/pkg/logx"
)

func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeChange returns the changed top-level sections (sorted) and safe
// attrs for logging. Secrets are reported only as *_set booleans.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.token_set", strings.TrimSpace(newCfg.Server.Token) != ""),
			logx.Bool("server.pprof", newCfg.Server.Pprof),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		driver := ""
		if newCfg.Storage != nil {
			driver = strings.TrimSpace(newCfg.Storage.Driver)
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}
	if oldCfg.Telemetry != newCfg.Telemetry {
		changed = append(changed, "telemetry")
		attrs = append(attrs,
			logx.String("telemetry.heartbeat", newCfg.Telemetry.Heartbeat),
			logx.String("telemetry.session_ttl", newCfg.Telemetry.SessionTTL),
		)
	}
	if oldCfg.Publish != newCfg.Publish {
		changed = append(changed, "publish")
		attrs = append(attrs,
			logx.String("publish.default_route", newCfg.Publish.DefaultRoute),
			logx.String("publish.step_timeout", newCfg.Publish.StepTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Webhook, newCfg.Webhook) {
		changed = append(changed, "webhook")
		attrs = append(attrs, logx.Strings("webhook.platforms", sortedKeys(newCfg.Webhook)))
	}
	if !reflect.DeepEqual(oldCfg.Platforms, newCfg.Platforms) {
		changed = append(changed, "platforms")
		attrs = append(attrs,
			logx.Bool("platforms.reddit", newCfg.Platforms.Reddit != nil),
			logx.Bool("platforms.email", newCfg.Platforms.Email != nil),
			logx.Bool("platforms.telegram", newCfg.Platforms.Telegram != nil),
		)
	}
	if !reflect.DeepEqual(oldCfg.Automation, newCfg.Automation) {
		changed = append(changed, "automation")
		var scripts []string
		if newCfg.Automation != nil {
			scripts = sortedKeys(newCfg.Automation.Scripts)
		}
		attrs = append(attrs, logx.Strings("automation.scripts", scripts))
	}
	if oldCfg.Scheduler != newCfg.Scheduler || !reflect.DeepEqual(oldCfg.Schedules, newCfg.Schedules) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.jobs", len(newCfg.Schedules)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
