package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"newsbot/internal/task/scheduler"
)

// ErrConfiguration marks a missing or invalid setting. Startup aborts on it.
var ErrConfiguration = errors.New("configuration error")

// Environment variables that override file values.
const (
	EnvNewsAPIKey    = "NEWS_API_KEY"
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChatID        = "TELEGRAM_CHAT_ID"
	EnvPostInterval  = "POST_INTERVAL"
	EnvLegacyMinutes = "POST_INTERVAL_MINUTES"
	EnvLedgerPath    = "LEDGER_PATH"
	EnvLogLevel      = "LOG_LEVEL"
)

const (
	DefaultInterval    = "1m"
	DefaultLedgerPath  = "sent_links.txt"
	DefaultMetricsAddr = "127.0.0.1:9090"
)

// LoadDotenv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment values onto cfg. Empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.News.APIKey, EnvNewsAPIKey)
	set(&c.Telegram.Token, EnvBotToken)
	set(&c.Telegram.ChatID, EnvChatID)
	set(&c.Scheduler.Interval, EnvLegacyMinutes)
	set(&c.Scheduler.Interval, EnvPostInterval)
	set(&c.Ledger.Path, EnvLedgerPath)
	set(&c.Logging.Level, EnvLogLevel)
}

// ApplyDefaults fills unset optional values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Scheduler.Interval) == "" {
		c.Scheduler.Interval = DefaultInterval
	}
	if strings.TrimSpace(c.Ledger.Driver) == "" {
		c.Ledger.Driver = "file"
	}
	if strings.TrimSpace(c.Ledger.Path) == "" {
		c.Ledger.Path = DefaultLedgerPath
	}
	if strings.TrimSpace(c.Translate.Source) == "" {
		c.Translate.Source = "en"
	}
	if strings.TrimSpace(c.Translate.Target) == "" {
		c.Translate.Target = "fa"
	}
	if strings.TrimSpace(c.Publisher.Language) == "" {
		c.Publisher.Language = c.Translate.Target
		if !c.Translate.IsEnabled() {
			c.Publisher.Language = c.Translate.Source
		}
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if !c.Logging.File.Enabled {
		c.Logging.Console = true
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate reports every missing or malformed setting, wrapped in
// ErrConfiguration.
func (c *Config) Validate() error {
	var problems []string
	req := func(v, name, env string) {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, fmt.Sprintf("%s is required (set %s)", name, env))
		}
	}
	req(c.News.APIKey, "news.api_key", EnvNewsAPIKey)
	req(c.Telegram.Token, "telegram.token", EnvBotToken)
	req(c.Telegram.ChatID, "telegram.chat_id", EnvChatID)
	req(c.Scheduler.Interval, "scheduler.interval", EnvPostInterval)
	if strings.TrimSpace(c.Scheduler.Interval) != "" {
		if err := scheduler.ValidateSchedule(c.Scheduler.Interval); err != nil {
			problems = append(problems, fmt.Sprintf("scheduler.interval: %v", err))
		}
	}

	for path, raw := range map[string]string{
		"telegram.timeout":        c.Telegram.Timeout,
		"news.timeout":            c.News.Timeout,
		"translate.timeout":       c.Translate.Timeout,
		"publisher.probe_timeout": c.Publisher.ProbeTimeout,
		"ledger.busy_timeout":     c.Ledger.BusyTimeout,
		"scheduler.timeout":       c.Scheduler.Timeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			problems = append(problems, err.Error())
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Publisher.ImagePolicy)) {
	case "", "fallback", "skip":
	default:
		problems = append(problems, fmt.Sprintf("publisher.image_policy: unknown value %q (use fallback or skip)", c.Publisher.ImagePolicy))
	}
	switch strings.ToLower(strings.TrimSpace(c.Publisher.Layout)) {
	case "", "detailed", "compact":
	default:
		problems = append(problems, fmt.Sprintf("publisher.layout: unknown value %q (use detailed or compact)", c.Publisher.Layout))
	}
	switch strings.ToLower(strings.TrimSpace(c.Publisher.Calendar)) {
	case "", "gregorian", "jalali":
	default:
		problems = append(problems, fmt.Sprintf("publisher.calendar: unknown value %q (use gregorian or jalali)", c.Publisher.Calendar))
	}
	for path, tz := range map[string]string{"publisher.timezone": c.Publisher.Timezone, "scheduler.timezone": c.Scheduler.Timezone} {
		if tz = strings.TrimSpace(tz); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", path, err))
			}
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Ledger.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		problems = append(problems, fmt.Sprintf("ledger.driver: unknown value %q (use file or sqlite)", c.Ledger.Driver))
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}
