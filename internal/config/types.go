package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Pprof    PprofConfig    `json:"pprof,omitempty"`

	// Reminders bounds the in-memory reminder list. Reminders live only for
	// the lifetime of the process; the storage section below keeps an audit
	// trail, never a restorable copy.
	Reminders ReminderConfig `json:"reminders"`

	// Scheduler controls the timer service that decides WHEN a reminder fires.
	Scheduler SchedulerConfig `json:"scheduler"`

	// Notifier controls the async delivery pipeline that decides HOW a fired
	// reminder reaches the user. If the whole section is omitted, the notifier
	// defaults to enabled=true.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Mail    *MailConfig    `json:"mail,omitempty"`
	API     *APIConfig     `json:"api,omitempty"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string ("10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ReminderConfig bounds the reminder store.
//
// Zero or omitted fields fall back to:
//   - max_reminders: 500
type ReminderConfig struct {
	MaxReminders int `json:"max_reminders,omitempty"`
}

// SchedulerConfig controls the timer service.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
//
// Zero or omitted fields fall back to:
//   - workers: 2
//   - default_timeout: "30s" (use "0s" to disable the per-fire timeout)
//   - history_size: 200
//   - retry_max: 3
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	Workers        int    `json:"workers,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`

	// Timezone resolves wall-clock targets and repeat schedules
	// (IANA name, e.g. "Asia/Jakarta"). Empty means the host zone.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async delivery pipeline.
//
// Durations are Go duration strings ("500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`

	// DefaultChannel is where reminders without an explicit channel are
	// delivered: "telegram" or "email". Empty means "telegram".
	DefaultChannel string `json:"default_channel,omitempty"`
}

// MailConfig controls the email delivery channel.
//
// Example:
//
//	"mail": { "driver": "sendgrid", "from": "bot@example.com", "default_to": "me@example.com" }
type MailConfig struct {
	// Driver is "sendgrid" or "console". Empty disables the email channel,
	// and reminders requesting it are rejected up front.
	Driver    string `json:"driver"`
	From      string `json:"from"`
	FromName  string `json:"from_name,omitempty"`
	DefaultTo string `json:"default_to"`
	APIKey    string `json:"api_key,omitempty"` // sendgrid key (do not log)
}

// APIConfig controls the optional HTTP API. Bind it to localhost
// ("127.0.0.1:8484") unless a token guards the non-loopback address.
type APIConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty"`  // default: "127.0.0.1:8484"
	Token       string   `json:"token,omitempty"` // bearer token; never logged
	CORSOrigins []string `json:"cors_origins,omitempty"`

	// HTTP server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// StorageConfig controls the audit/dedup persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./remindbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PprofConfig controls the debug pprof HTTP listener. Bind it to localhost
// ("127.0.0.1:6060"); a non-loopback address needs a token or an explicit
// allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // bearer token; never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// HTTP server timeouts (Go duration strings). WriteTimeout stays 0
	// unless set; a 30s CPU profile needs the response open that long.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Profiling rates handed to the runtime. Zero keeps the Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
	MemProfileRate       int `json:"mem_profile_rate,omitempty"`
}
