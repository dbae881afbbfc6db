// Package translate renders article fields into the channel language.
//
// Translation is best-effort: every helper here returns the original text
// when the backend fails, so a broken translator never blocks delivery.
package translate

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	logx "newsbot/pkg/logx"
)

// ErrTranslation marks a failed translation attempt.
var ErrTranslation = errors.New("translation failed")

// Translator converts text between two language codes.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Identity returns its input unchanged. It is used when translation is disabled.
type Identity struct{}

func (Identity) Translate(_ context.Context, text, _, _ string) (string, error) { return text, nil }

// Text translates a single string. Empty input returns empty output without
// calling tr; on failure the original text is returned and the error logged.
func Text(ctx context.Context, tr Translator, log logx.Logger, text, source, target string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return text, true
	}
	if tr == nil {
		return text, true
	}
	out, err := tr.Translate(ctx, text, source, target)
	if err != nil {
		log.Warn("translation failed, using original text",
			logx.String("src", source), logx.String("dst", target), logx.Err(err))
		return text, false
	}
	if strings.TrimSpace(out) == "" {
		log.Warn("translation returned empty text, using original",
			logx.String("src", source), logx.String("dst", target))
		return text, false
	}
	return out, true
}

// Fields translates each text concurrently and returns the results in input
// order. Every field falls back independently. The second return value counts
// the fields that fell back to the original.
func Fields(ctx context.Context, tr Translator, log logx.Logger, source, target string, texts ...string) ([]string, int) {
	out := make([]string, len(texts))
	ok := make([]bool, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			out[i], ok[i] = Text(gctx, tr, log, text, source, target)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, v := range ok {
		if !v {
			failed++
		}
	}
	return out, failed
}
