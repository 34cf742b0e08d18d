package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Publish   PublishConfig   `json:"publish"`

	// Webhook maps a platform to the workflow runner that posts for it.
	Webhook    map[string]WebhookConfig `json:"webhook,omitempty"`
	Platforms  PlatformsConfig          `json:"platforms"`
	Automation *AutomationConfig        `json:"automation,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`
	Schedules []ScheduleJob   `json:"schedules,omitempty"`
}

// ServerConfig controls the HTTP surface.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8080").
//   - A non-loopback address needs a token or an explicit allow_insecure.
type ServerConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// No write timeout: event streams stay open until the client leaves.
	ReadTimeout string `json:"read_timeout,omitempty"`
	IdleTimeout string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects where targets, groups and stored content live.
// Omitting the section keeps everything in memory.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./promocast.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | memory
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type TelemetryConfig struct {
	Heartbeat  string `json:"heartbeat,omitempty"`   // default: "30s"
	SessionTTL string `json:"session_ttl,omitempty"` // "0s" keeps sessions forever
}

type PublishConfig struct {
	// DefaultRoute is used for flagged platforms without a route (default: "api").
	DefaultRoute string `json:"default_route,omitempty"`
	// StepTimeout bounds one platform execution. "0s" disables it.
	StepTimeout string `json:"step_timeout,omitempty"`
}

type WebhookConfig struct {
	URL        string `json:"url"`
	Token      string `json:"token,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
}

// PlatformsConfig holds credentials for the direct API channel. A nil
// section leaves that platform without an api route.
type PlatformsConfig struct {
	Reddit   *RedditConfig   `json:"reddit,omitempty"`
	Email    *EmailConfig    `json:"email,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// APIConfig is shared by every api-channel platform.
type APIConfig struct {
	RatePerSec  float64 `json:"rate_per_sec,omitempty"`
	StopOnError bool    `json:"stop_on_error,omitempty"`
}

type RedditConfig struct {
	APIConfig
	BaseURL     string `json:"base_url,omitempty"`
	AccessToken string `json:"access_token"`
	UserAgent   string `json:"user_agent,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty"`
}

type EmailConfig struct {
	APIConfig
	Host     string `json:"host"`
	Port     string `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	HTML     bool   `json:"html,omitempty"`
}

type TelegramConfig struct {
	APIConfig
	Token          string `json:"token"`
	APIURL         string `json:"api_url,omitempty"`
	ParseMode      string `json:"parse_mode,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	Timeout        string `json:"timeout,omitempty"`
}

// AutomationConfig drives a browser for platforms without a usable API.
type AutomationConfig struct {
	// ControlURL attaches to a running browser instead of launching one.
	ControlURL  string `json:"control_url,omitempty"`
	Bin         string `json:"bin,omitempty"`
	Headless    *bool  `json:"headless,omitempty"` // default: true
	PageTimeout string `json:"page_timeout,omitempty"`

	Scripts map[string]AutomationScript `json:"scripts"`
}

// AutomationScript holds the compose URL and CSS selectors for one platform.
type AutomationScript struct {
	URL            string `json:"url"`
	RecipientField string `json:"recipient_field,omitempty"`
	Title          string `json:"title,omitempty"`
	Body           string `json:"body,omitempty"`
	Link           string `json:"link,omitempty"`
	Files          string `json:"files,omitempty"`
	Submit         string `json:"submit"`
	Done           string `json:"done,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`
}

// ScheduleJob runs the batch file on a cron expression, a duration
// ("55m") or an HH:MM interval.
type ScheduleJob struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Batch    string `json:"batch"`
	DryMode  bool   `json:"dry_mode,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}
