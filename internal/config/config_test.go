package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

var requiredEnv = map[string]string{
	EnvNewsAPIKey: "key",
	EnvBotToken:   "123:abc",
	EnvChatID:     "@news",
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFromEnvOnly(t *testing.T) {
	m := NewConfigManager("")
	m.SetEnv(envOf(requiredEnv))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Interval != DefaultInterval || cfg.Ledger.Path != DefaultLedgerPath || cfg.Ledger.Driver != "file" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Translate.Source != "en" || cfg.Translate.Target != "fa" || cfg.Publisher.Language != "fa" {
		t.Fatalf("translate defaults: %+v / %+v", cfg.Translate, cfg.Publisher)
	}
	if !cfg.Logging.Console {
		t.Fatal("console logging should default on")
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit")
	}
}

func TestLoadReportsEveryMissingSetting(t *testing.T) {
	m := NewConfigManager("")
	m.SetEnv(envOf(nil))
	_, err := m.Load()
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	for _, env := range []string{EnvNewsAPIKey, EnvBotToken, EnvChatID} {
		if !strings.Contains(err.Error(), env) {
			t.Errorf("error does not mention %s: %v", env, err)
		}
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "newsbot.json", `{
		"telegram": {"token": "file-token", "chat_id": "-1001"},
		"news": {"api_key": "file-key", "query": "golang"},
		"scheduler": {"interval": "5m"}
	}`)
	m := NewConfigManager(p)
	m.SetEnv(envOf(map[string]string{EnvBotToken: "env-token", EnvPostInterval: "00:30"}))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "env-token" || cfg.Telegram.ChatID != "-1001" || cfg.News.Query != "golang" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Scheduler.Interval != "00:30" {
		t.Fatalf("interval = %q", cfg.Scheduler.Interval)
	}
}

func TestLegacyMinutesVariable(t *testing.T) {
	env := map[string]string{EnvLegacyMinutes: "3"}
	for k, v := range requiredEnv {
		env[k] = v
	}
	m := NewConfigManager("")
	m.SetEnv(envOf(env))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.Interval != "3" {
		t.Fatalf("interval = %q", cfg.Scheduler.Interval)
	}

	env[EnvPostInterval] = "10m"
	cfg, _ = m.Load()
	if cfg.Scheduler.Interval != "10m" {
		t.Fatalf("POST_INTERVAL should win, got %q", cfg.Scheduler.Interval)
	}
}

func TestYAMLConfig(t *testing.T) {
	p := writeFile(t, "newsbot.yaml", `
publisher:
  layout: compact
  image_policy: skip
  calendar: jalali
ledger:
  driver: sqlite
  path: ./data/ledger.db
translate:
  enabled: false
`)
	m := NewConfigManager(p)
	m.SetEnv(envOf(requiredEnv))
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publisher.Layout != "compact" || cfg.Publisher.ImagePolicy != "skip" || cfg.Ledger.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Translate.IsEnabled() || cfg.Publisher.Language != "en" {
		t.Fatalf("translate disabled should label in source language: %+v", cfg.Publisher)
	}
}

func TestStrictDecoding(t *testing.T) {
	cases := map[string]string{
		"unknown.json":  `{"telegram": {"tokn": "x"}}`,
		"trailing.json": `{} {}`,
		"unknown.yaml":  "bogus: 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewConfigManager(writeFile(t, name, body))
			m.SetEnv(envOf(requiredEnv))
			if _, err := m.Load(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	m := NewConfigManager(filepath.Join(t.TempDir(), "nope.json"))
	m.SetEnv(envOf(requiredEnv))
	if _, err := m.Load(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"interval":     func(c *Config) { c.Scheduler.Interval = "soon" },
		"cron":         func(c *Config) { c.Scheduler.Interval = "61 * * * *" },
		"image policy": func(c *Config) { c.Publisher.ImagePolicy = "maybe" },
		"layout":       func(c *Config) { c.Publisher.Layout = "fancy" },
		"calendar":     func(c *Config) { c.Publisher.Calendar = "lunar" },
		"timezone":     func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"driver":       func(c *Config) { c.Ledger.Driver = "redis" },
		"duration":     func(c *Config) { c.News.Timeout = "fast" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyEnv(envOf(requiredEnv))
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline invalid: %v", err)
			}
			mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{}
	a.ApplyEnv(envOf(requiredEnv))
	a.ApplyDefaults()
	b := *a
	b.Publisher.Layout = "compact"
	b.Logging.Level = "debug"
	b.News.APIKey = "rotated"

	s := SummarizeConfigChange(a, &b)
	if got := strings.Join(s.Changed, ","); got != "logging,news,publisher" {
		t.Fatalf("changed = %q", got)
	}
	if got := strings.Join(s.Restart, ","); got != "news" {
		t.Fatalf("restart = %q", got)
	}
	if len(SummarizeConfigChange(a, a).Changed) != 0 {
		t.Fatal("identical configs reported as changed")
	}
}

func TestLoadDotenvDoesNotOverride(t *testing.T) {
	p := writeFile(t, ".env", "NEWSBOT_TEST_A=from-file\nNEWSBOT_TEST_B=from-file\n")
	t.Setenv("NEWSBOT_TEST_A", "from-env")
	os.Unsetenv("NEWSBOT_TEST_B")
	t.Cleanup(func() { os.Unsetenv("NEWSBOT_TEST_B") })

	if err := LoadDotenv(p, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("NEWSBOT_TEST_A") != "from-env" || os.Getenv("NEWSBOT_TEST_B") != "from-file" {
		t.Fatalf("A=%q B=%q", os.Getenv("NEWSBOT_TEST_A"), os.Getenv("NEWSBOT_TEST_B"))
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	p := writeFile(t, "newsbot.json", `{"publisher": {"layout": "detailed"}}`)
	m := NewConfigManager(p)
	m.SetEnv(envOf(requiredEnv))
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid content is never published.
	if err := os.WriteFile(p, []byte(`{"publisher": {"layout": "fancy"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"publisher": {"layout": "compact"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Publisher.Layout != "compact" {
			t.Fatalf("published layout = %q", cfg.Publisher.Layout)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Publisher.Layout != "compact" {
		t.Fatal("published config not committed")
	}
}

func TestWatchHonorsValidator(t *testing.T) {
	p := writeFile(t, "newsbot.json", `{"publisher": {"layout": "detailed"}}`)
	m := NewConfigManager(p)
	m.SetEnv(envOf(requiredEnv))
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(_ context.Context, cfg *Config) error {
		if cfg.Publisher.Calendar == "jalali" {
			return errors.New("calendar locked")
		}
		return nil
	})
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(p, []byte(`{"publisher": {"calendar": "jalali"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := os.WriteFile(p, []byte(`{"publisher": {"layout": "compact"}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-ch:
		if cfg.Publisher.Calendar == "jalali" || cfg.Publisher.Layout != "compact" {
			t.Fatalf("published %+v", cfg.Publisher)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}
