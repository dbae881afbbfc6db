package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"
	maxQueryRunes         = 4000
)

type GoogleConfig struct {
	Endpoint string
	Timeout  time.Duration
	// RatePerSecond throttles outgoing calls. Zero disables throttling.
	RatePerSecond float64
	Burst         int
}

// Google calls the public gtx translation endpoint.
type Google struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

func NewGoogle(cfg GoogleConfig, hc *http.Client) *Google {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultGoogleEndpoint
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	g := &Google{endpoint: cfg.Endpoint, http: hc}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 2
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return g
}

func (g *Google) Translate(ctx context.Context, text, source, target string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrTranslation, err)
		}
	}
	if source == "" {
		source = "auto"
	}
	if r := []rune(text); len(r) > maxQueryRunes {
		text = string(r[:maxQueryRunes])
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", source)
	params.Set("tl", target)
	params.Set("dt", "t")
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrTranslation, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrTranslation, err)
	}
	out, err := parseGTX(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslation, err)
	}
	return out, nil
}

// parseGTX concatenates the translated segments of a gtx response:
// [[["seg1","src1",...],["seg2","src2",...]],null,"en",...]
func parseGTX(body []byte) (string, error) {
	var root []any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if len(root) == 0 {
		return "", fmt.Errorf("empty response")
	}
	segs, ok := root[0].([]any)
	if !ok {
		return "", fmt.Errorf("unexpected response shape")
	}
	var b strings.Builder
	for _, s := range segs {
		parts, ok := s.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if str, ok := parts[0].(string); ok {
			b.WriteString(str)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no translated segments")
	}
	return b.String(), nil
}
