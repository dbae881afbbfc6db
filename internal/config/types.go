package config

// Config is the full bot configuration. Every section is optional in the
// file; required values usually arrive through the environment.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	News      NewsConfig      `json:"news"`
	Translate TranslateConfig `json:"translate"`
	Publisher PublisherConfig `json:"publisher"`
	Ledger    LedgerConfig    `json:"ledger"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// ChatID is a numeric chat id ("-100...") or a public "@channel".
	ChatID     string  `json:"chat_id,omitempty"`
	ThreadID   int     `json:"thread_id,omitempty"`
	APIURL     string  `json:"api_url,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	// Timeout is a Go duration string (e.g. "30s").
	Timeout string `json:"timeout,omitempty"`
}

type NewsConfig struct {
	APIKey   string `json:"api_key,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Host     string `json:"host,omitempty"`
	Query    string `json:"query,omitempty"`
	Language string `json:"language,omitempty"`
	Sort     string `json:"sort,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type TranslateConfig struct {
	// Enabled is a pointer so an omitted key can default to true.
	Enabled    *bool   `json:"enabled,omitempty"`
	Source     string  `json:"source,omitempty"`
	Target     string  `json:"target,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// IsEnabled reports whether translation is on (default true).
func (t TranslateConfig) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

type PublisherConfig struct {
	// Layout is "detailed" (default) or "compact".
	Layout string `json:"layout,omitempty"`
	// Language selects the label set and text direction. Defaults to translate.target.
	Language string `json:"language,omitempty"`
	// ImagePolicy is "fallback" (default) or "skip".
	ImagePolicy    string `json:"image_policy,omitempty"`
	Footer         string `json:"footer,omitempty"`
	Calendar       string `json:"calendar,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
	MaxHashtags    int    `json:"max_hashtags,omitempty"`
	ProbeTimeout   string `json:"probe_timeout,omitempty"`
}

// LedgerConfig selects the sent-link store.
//
// Example:
//
//	"ledger": { "driver": "sqlite", "path": "./data/ledger.db", "import_from": "./sent_links.txt" }
type LedgerConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// ImportFrom names a legacy text log merged into the ledger at startup.
	ImportFrom string `json:"import_from,omitempty"`
}

type SchedulerConfig struct {
	// Interval accepts a Go duration, HH:MM, bare minutes or a cron spec.
	Interval   string `json:"interval,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
	// HistorySize bounds the number of past runs kept for diagnostics.
	HistorySize int `json:"history_size,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// MetricsConfig controls the optional Prometheus/health HTTP server.
//
// Prefer binding to localhost; pprof handlers are mounted only when Pprof is set.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9090"
	Pprof   bool   `json:"pprof,omitempty"`
}
