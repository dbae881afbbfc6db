// Package telegram implements transport.Sender on top of telebot.
//
// The bot only ever posts to a channel, so no poller is started.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	kit "newsbot/internal/transport"
	logx "newsbot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API base URL (tests, local bot api servers).
	APIURL string
	// RatePerSecond caps outbound calls. Telegram allows about 20/min per
	// channel; zero selects one call per second.
	RatePerSecond float64
	Timeout       time.Duration
}

type Adapter struct {
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter
}

var _ kit.Sender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  newHTTPClient(timeout),
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Adapter{
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

type recipient string

func (r recipient) Recipient() string { return string(r) }

func recipientOf(to kit.ChatTarget) tele.Recipient {
	if to.ChatID != 0 {
		return tele.ChatID(to.ChatID)
	}
	return recipient(to.Username)
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	return &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
}

func (a *Adapter) wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(recipientOf(to), text, sendOptions(to, opt))
	if err != nil {
		a.logSendError("sendMessage", to, err)
		return kit.MessageRef{}, err
	}
	return ref(msg), nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoURL, caption string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	p := &tele.Photo{File: tele.FromURL(photoURL), Caption: caption}
	msg, err := a.bot.Send(recipientOf(to), p, sendOptions(to, opt))
	if err != nil {
		a.logSendError("sendPhoto", to, err)
		return kit.MessageRef{}, err
	}
	return ref(msg), nil
}

func (a *Adapter) logSendError(method string, to kit.ChatTarget, err error) {
	fields := []logx.Field{logx.String("method", method), logx.String("chat", to.String()), logx.Err(err)}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		fields = append(fields, logx.Int("retry_after_s", flood.RetryAfter))
	}
	a.log.Debug("telegram send failed", fields...)
}

func ref(m *tele.Message) kit.MessageRef {
	if m == nil {
		return kit.MessageRef{}
	}
	r := kit.MessageRef{MessageID: m.ID}
	if m.Chat != nil {
		r.ChatID = m.Chat.ID
	}
	return r
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
