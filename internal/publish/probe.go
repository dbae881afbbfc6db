package publish

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoImage reports that an article has no usable image.
var ErrNoImage = errors.New("no valid image")

// ImageProber decides whether a URL points at a fetchable image.
type ImageProber interface {
	Probe(ctx context.Context, imageURL string) error
}

// HeadProber issues an HTTP HEAD (following redirects) and accepts only a
// 200 response with an image/* content type.
type HeadProber struct {
	Client  *http.Client
	Timeout time.Duration
}

func (p HeadProber) Probe(ctx context.Context, imageURL string) error {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return fmt.Errorf("%w: empty url", ErrNoImage)
	}
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: bad url %q", ErrNoImage, imageURL)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	hc := p.Client
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoImage, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrNoImage, resp.StatusCode)
	}
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mt, "image/") {
		return fmt.Errorf("%w: content type %q", ErrNoImage, resp.Header.Get("Content-Type"))
	}
	return nil
}
