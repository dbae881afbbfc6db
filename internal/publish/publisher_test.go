package publish

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsbot/internal/news"
	kit "newsbot/internal/transport"
	logx "newsbot/pkg/logx"
)

type sent struct {
	kind    string
	photo   string
	content string
	opt     kit.SendOptions
}

type fakeSender struct {
	photoErr error
	textErr  error
	sent     []sent
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, sent{kind: "text", content: text, opt: *opt})
	if f.textErr != nil {
		return kit.MessageRef{}, f.textErr
	}
	return kit.MessageRef{MessageID: len(f.sent)}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, _ kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, sent{kind: "photo", photo: photoURL, content: caption, opt: *opt})
	if f.photoErr != nil {
		return kit.MessageRef{}, f.photoErr
	}
	return kit.MessageRef{MessageID: len(f.sent)}, nil
}

type proberFunc func(string) error

func (f proberFunc) Probe(_ context.Context, u string) error { return f(u) }

var (
	okImage = proberFunc(func(string) error { return nil })
	noImage = proberFunc(func(string) error { return ErrNoImage })
)

func testArticle() news.Article {
	return news.Article{
		Title:         "Title",
		Link:          "https://x/1",
		Snippet:       "Snippet",
		Publisher:     "Wire",
		ImageURL:      "https://img/1.jpg",
		RelatedTopics: []string{"AI"},
	}
}

func TestDeliverPolicies(t *testing.T) {
	boom := errors.New("telegram down")
	cases := []struct {
		name      string
		policy    string
		prober    ImageProber
		imageURL  string
		sender    *fakeSender
		wantMode  Mode
		wantErr   error
		wantKinds string
	}{
		{"photo ok", PolicyFallback, okImage, "https://img/1.jpg", &fakeSender{}, ModePhoto, nil, "photo"},
		{"no image falls back", PolicyFallback, noImage, "https://img/1.jpg", &fakeSender{}, ModeText, nil, "text"},
		{"empty url falls back without probe", PolicyFallback, proberFunc(func(string) error { panic("probed") }), "", &fakeSender{}, ModeText, nil, "text"},
		{"photo fails falls back", PolicyFallback, okImage, "https://img/1.jpg", &fakeSender{photoErr: boom}, ModeText, nil, "photo,text"},
		{"text fails", PolicyFallback, noImage, "https://img/1.jpg", &fakeSender{textErr: boom}, "", boom, "text"},
		{"skip without image", PolicySkip, noImage, "https://img/1.jpg", &fakeSender{}, ModeSkipped, ErrNoImage, ""},
		{"skip photo fails", PolicySkip, okImage, "https://img/1.jpg", &fakeSender{photoErr: boom}, "", boom, "photo"},
		{"skip photo ok", PolicySkip, okImage, "https://img/1.jpg", &fakeSender{}, ModePhoto, nil, "photo"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(Config{ImagePolicy: tc.policy}, tc.sender, tc.prober, logx.Nop())
			a := testArticle()
			a.ImageURL = tc.imageURL
			res, err := p.Deliver(context.Background(), a, Translated{Title: "T", Snippet: "S"})
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if res.Mode != tc.wantMode {
				t.Fatalf("mode = %q, want %q", res.Mode, tc.wantMode)
			}
			var kinds []string
			for _, s := range tc.sender.sent {
				kinds = append(kinds, s.kind)
				if s.opt.ParseMode != "HTML" {
					t.Fatalf("parse mode = %q", s.opt.ParseMode)
				}
			}
			if got := strings.Join(kinds, ","); got != tc.wantKinds {
				t.Fatalf("sends = %q, want %q", got, tc.wantKinds)
			}
		})
	}
}

func TestDeliverRespectsLengthLimits(t *testing.T) {
	s := &fakeSender{photoErr: errors.New("too big")}
	p := New(Config{}, s, okImage, logx.Nop())
	a := testArticle()
	long := strings.Repeat("word ", 2000)
	if _, err := p.Deliver(context.Background(), a, Translated{Title: "T", Snippet: long}); err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(s.sent[0].content); n > CaptionLimit {
		t.Fatalf("caption runes = %d", n)
	}
	if n := utf8.RuneCountInString(s.sent[1].content); n > TextLimit {
		t.Fatalf("text runes = %d", n)
	}
	for _, m := range s.sent {
		if !strings.Contains(m.content, `href="https://x/1"`) {
			t.Fatalf("link lost after shortening: %q", m.content[len(m.content)-200:])
		}
	}
}

func TestPrecheckOnlyUnderSkipPolicy(t *testing.T) {
	ctx := context.Background()
	panicky := proberFunc(func(string) error { panic("probed") })
	if err := New(Config{ImagePolicy: PolicyFallback}, &fakeSender{}, panicky, logx.Nop()).Precheck(ctx, testArticle()); err != nil {
		t.Fatalf("fallback precheck = %v", err)
	}

	p := New(Config{ImagePolicy: PolicySkip}, &fakeSender{}, noImage, logx.Nop())
	if err := p.Precheck(ctx, testArticle()); !errors.Is(err, ErrNoImage) {
		t.Fatalf("skip precheck = %v, want ErrNoImage", err)
	}
	a := testArticle()
	a.ImageURL = " "
	if err := New(Config{ImagePolicy: PolicySkip}, &fakeSender{}, panicky, logx.Nop()).Precheck(ctx, a); !errors.Is(err, ErrNoImage) {
		t.Fatalf("skip precheck without url = %v", err)
	}
	if err := New(Config{ImagePolicy: PolicySkip}, &fakeSender{}, okImage, logx.Nop()).Precheck(ctx, testArticle()); err != nil {
		t.Fatalf("skip precheck with image = %v", err)
	}
}

func TestApplyKeepsTarget(t *testing.T) {
	p := New(Config{Target: kit.ChatTarget{ChatID: 7}}, &fakeSender{}, okImage, logx.Nop())
	p.Apply(Config{Target: kit.ChatTarget{ChatID: 9}, ImagePolicy: "SKIP", Renderer: Renderer{Layout: LayoutCompact}})
	cfg := p.config()
	if cfg.Target.ChatID != 7 || cfg.ImagePolicy != PolicySkip || cfg.Renderer.Layout != LayoutCompact {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestHeadProber(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok.jpg", http.StatusFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := HeadProber{Client: srv.Client(), Timeout: time.Second}
	for path, ok := range map[string]bool{"/ok.jpg": true, "/moved": true, "/page": false, "/gone": false} {
		err := p.Probe(context.Background(), srv.URL+path)
		if ok && err != nil {
			t.Errorf("%s: unexpected err %v", path, err)
		}
		if !ok && !errors.Is(err, ErrNoImage) {
			t.Errorf("%s: err = %v, want ErrNoImage", path, err)
		}
	}
	for _, bad := range []string{"", "ftp://x/y.png", "not a url"} {
		if err := p.Probe(context.Background(), bad); !errors.Is(err, ErrNoImage) {
			t.Errorf("Probe(%q) = %v", bad, err)
		}
	}
}
