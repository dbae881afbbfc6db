// Package publish renders articles and posts them to the channel.
package publish

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"newsbot/internal/news"
	kit "newsbot/internal/transport"
	logx "newsbot/pkg/logx"
)

const (
	// PolicyFallback posts as text when the image is missing or the photo send fails.
	PolicyFallback = "fallback"
	// PolicySkip drops articles without a valid image.
	PolicySkip = "skip"
)

type Mode string

const (
	ModePhoto   Mode = "photo"
	ModeText    Mode = "text"
	ModeSkipped Mode = "skipped"
)

type Result struct {
	Mode Mode
	Ref  kit.MessageRef
}

type Config struct {
	Target         kit.ChatTarget
	ImagePolicy    string
	DisablePreview bool
	Renderer       Renderer
}

type Publisher struct {
	sender kit.Sender
	prober ImageProber
	log    logx.Logger
	now    func() time.Time

	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config, sender kit.Sender, prober ImageProber, log logx.Logger) *Publisher {
	if prober == nil {
		prober = HeadProber{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{sender: sender, prober: prober, log: log, now: time.Now, cfg: normalize(cfg)}
}

func normalize(cfg Config) Config {
	switch strings.ToLower(strings.TrimSpace(cfg.ImagePolicy)) {
	case PolicySkip:
		cfg.ImagePolicy = PolicySkip
	default:
		cfg.ImagePolicy = PolicyFallback
	}
	if cfg.Renderer.Layout != LayoutCompact {
		cfg.Renderer.Layout = LayoutDetailed
	}
	return cfg
}

// Apply swaps the rendering and policy settings. The target chat is kept.
func (p *Publisher) Apply(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.cfg.Target
	p.cfg = normalize(cfg)
	p.cfg.Target = target
}

func (p *Publisher) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Precheck probes the article image when the skip policy is active, so an
// article that would be skipped is refused before any translation work.
// Under the fallback policy it always returns nil.
func (p *Publisher) Precheck(ctx context.Context, a news.Article) error {
	if p.config().ImagePolicy != PolicySkip {
		return nil
	}
	if strings.TrimSpace(a.ImageURL) == "" {
		return fmt.Errorf("%w: article has no image url", ErrNoImage)
	}
	return p.prober.Probe(ctx, a.ImageURL)
}

// Deliver posts one article. A nil error means the channel has the message.
// Under PolicySkip an article without a valid image returns an error
// wrapping ErrNoImage and Result.Mode == ModeSkipped.
func (p *Publisher) Deliver(ctx context.Context, a news.Article, tr Translated) (Result, error) {
	cfg := p.config()
	now := p.now()
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: cfg.DisablePreview}
	log := p.log.With(logx.String("link", a.Link))

	var imgErr error
	if strings.TrimSpace(a.ImageURL) == "" {
		imgErr = fmt.Errorf("%w: article has no image url", ErrNoImage)
	} else {
		imgErr = p.prober.Probe(ctx, a.ImageURL)
	}

	if imgErr == nil {
		caption := cfg.Renderer.Render(a, tr, now, CaptionLimit)
		ref, err := p.sender.SendPhoto(ctx, cfg.Target, a.ImageURL, caption, opt)
		if err == nil {
			return Result{Mode: ModePhoto, Ref: ref}, nil
		}
		if cfg.ImagePolicy == PolicySkip {
			return Result{}, fmt.Errorf("send photo: %w", err)
		}
		log.Warn("photo send failed, falling back to text", logx.Err(err))
	} else {
		if cfg.ImagePolicy == PolicySkip {
			return Result{Mode: ModeSkipped}, imgErr
		}
		log.Debug("no usable image, sending text", logx.Err(imgErr))
	}

	text := cfg.Renderer.Render(a, tr, now, TextLimit)
	ref, err := p.sender.SendText(ctx, cfg.Target, text, opt)
	if err != nil {
		return Result{}, fmt.Errorf("send text: %w", err)
	}
	return Result{Mode: ModeText, Ref: ref}, nil
}
