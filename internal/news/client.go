package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "newsbot/pkg/logx"
)

// ErrUnexpectedShape is returned by Decode when the body is valid JSON but
// neither a list nor an object with a "data" list.
var ErrUnexpectedShape = errors.New("news: unexpected response shape")

const (
	DefaultEndpoint = "https://real-time-news-data.p.rapidapi.com/search"
	DefaultQuery    = "Artificial Intelligence, Programming, Machine Learning, Data Science, Python, Computer Engineering"
	DefaultLanguage = "en"
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 8 << 20
)

type Config struct {
	Endpoint string
	// Host is sent as X-RapidAPI-Host. Derived from Endpoint when empty.
	Host     string
	APIKey   string
	Query    string
	Language string
	Sort     string
	Timeout  time.Duration
}

// Client queries the RapidAPI real-time news search endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, hc *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(cfg.Query) == "" {
		cfg.Query = DefaultQuery
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = DefaultLanguage
	}
	if strings.TrimSpace(cfg.Sort) == "" {
		cfg.Sort = "date"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.Host) == "" {
		if u, err := url.Parse(cfg.Endpoint); err == nil {
			cfg.Host = u.Host
		}
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

// Latest runs Fetch with the configured query.
func (c *Client) Latest(ctx context.Context) []Article {
	return c.Fetch(ctx, c.cfg.Query)
}

// Fetch returns the articles matching query in API order (newest first).
// Any failure is logged and yields an empty slice.
func (c *Client) Fetch(ctx context.Context, query string) []Article {
	if strings.TrimSpace(query) == "" {
		query = c.cfg.Query
	}
	start := time.Now()
	arts, err := c.fetch(ctx, query)
	if err != nil {
		c.log.Warn("news fetch failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return nil
	}
	if len(arts) == 0 {
		c.log.Info("news fetch returned no articles", logx.Duration("took", time.Since(start)))
		return nil
	}
	c.log.Debug("news fetched", logx.Int("count", len(arts)), logx.Duration("took", time.Since(start)))
	return arts
}

func (c *Client) fetch(ctx context.Context, query string) ([]Article, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("lang", c.cfg.Language)
	q.Set("sort", c.cfg.Sort)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.cfg.Host)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet(body))
	}
	return Decode(body)
}

// Decode parses either {"data": [...]} or a bare [...] into articles.
func Decode(body []byte) ([]Article, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrUnexpectedShape)
	}

	var list []rawArticle
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
	case '{':
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return nil, nil
		}
		if data[0] != '[' {
			return nil, fmt.Errorf("%w: data is not a list", ErrUnexpectedShape)
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	default:
		return nil, ErrUnexpectedShape
	}

	out := make([]Article, 0, len(list))
	for _, r := range list {
		out = append(out, r.normalize())
	}
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
