package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"newsbot/internal/config"
	kit "newsbot/internal/transport"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.msgs)}, nil
}

func (f *fakeSender) SendPhoto(context.Context, kit.ChatTarget, string, string, *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, errors.New("no photos in this test")
}

func (f *fakeSender) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// newsAPI serves the same batch on every call, newest first.
func newsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","data":[
			{"title":"Newer story","link":"https://x/2","snippet":"two"},
			{"title":"Older story","link":"https://x/1","snippet":"one"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	off := false
	cfg := &config.Config{}
	cfg.News.APIKey = "k"
	cfg.News.Endpoint = endpoint
	cfg.Telegram.Token = "1:abc"
	cfg.Telegram.ChatID = "@news"
	cfg.Translate.Enabled = &off
	cfg.Scheduler.Interval = "1h"
	cfg.Scheduler.RunOnStart = true
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "sent_links.txt")
	cfg.Logging.Level = "error"
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func startApp(t *testing.T, cfg *config.Config, s *fakeSender) *App {
	t.Helper()
	cfgm := config.NewConfigManager("")
	cfgm.Commit(cfg)
	a, err := New(cfgm, cfg, Options{Sender: s})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestRunOnStartDeliversOldestAndRecords(t *testing.T) {
	s := &fakeSender{}
	cfg := testConfig(t, newsAPI(t).URL)
	a := startApp(t, cfg, s)

	waitFor(t, "first delivery", func() bool { return len(s.sent()) == 1 })
	stopApp(t, a)

	got := s.sent()[0]
	if got.to.Username != "@news" || !strings.Contains(got.text, "Older story") {
		t.Fatalf("first message = %+v", got)
	}
	b, err := os.ReadFile(cfg.Ledger.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "https://x/1\n" {
		t.Fatalf("ledger = %q", b)
	}
	if n := a.Queue().Len(); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
}

func TestImportedLinksAreNotReposted(t *testing.T) {
	s := &fakeSender{}
	cfg := testConfig(t, newsAPI(t).URL)
	legacy := filepath.Join(t.TempDir(), "legacy.txt")
	if err := os.WriteFile(legacy, []byte("https://x/1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Ledger.Driver = "sqlite"
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger.db")
	cfg.Ledger.ImportFrom = legacy

	a := startApp(t, cfg, s)
	waitFor(t, "first delivery", func() bool { return len(s.sent()) == 1 })
	stopApp(t, a)

	if txt := s.sent()[0].text; !strings.Contains(txt, "Newer story") {
		t.Fatalf("imported link was posted again: %q", txt)
	}
}

func TestReloadKeepsTarget(t *testing.T) {
	s := &fakeSender{}
	cfg := testConfig(t, newsAPI(t).URL)
	a := startApp(t, cfg, s)
	defer stopApp(t, a)
	waitFor(t, "first delivery", func() bool { return len(s.sent()) == 1 })

	next := *cfg
	next.Telegram.ChatID = "@other"
	next.Publisher.Layout = "compact"
	a.applyConfig(cfg, &next)

	// The first run may still hold the overlap guard; keep nudging.
	waitFor(t, "second delivery", func() bool {
		if len(s.sent()) >= 2 {
			return true
		}
		a.sched.RunNow(TickJob)
		return false
	})
	if to := s.sent()[1].to.Username; to != "@news" {
		t.Fatalf("second message went to %q; chat changes need a restart", to)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := &fakeSender{}
	cfg := testConfig(t, newsAPI(t).URL)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := startApp(t, cfg, s)
	defer stopApp(t, a)
	waitFor(t, "first delivery", func() bool { return len(s.sent()) == 1 })
	waitFor(t, "tick bookkeeping", func() bool { return a.lastTickAt.Load() > 0 })

	resp, err := http.Get("http://" + a.msrv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body["last_outcome"] != "delivered" || body["queue_length"] != float64(1) {
		t.Fatalf("healthz = %d %v", resp.StatusCode, body)
	}
}

func TestInvalidChatIsConfigurationError(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Telegram.ChatID = "bad chat"
	if _, err := New(nil, cfg, Options{Sender: &fakeSender{}}); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestReloadRejectsUnusableConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a := &App{}
	ctx := context.Background()
	if err := a.validateReload(ctx, cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := *cfg
	bad.Telegram.ChatID = "bad chat"
	if err := a.validateReload(ctx, &bad); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("bad chat err = %v", err)
	}
}
