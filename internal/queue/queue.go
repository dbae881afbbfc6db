// Package queue holds the in-memory delivery queue that feeds the channel
// one article per tick.
//
// The queue is refilled only when empty. Each fill drops links that are
// unschedulable or already in the ledger and reverses the API order so the
// oldest article goes out first. A failed delivery puts the article back at
// the head so it is retried before anything else.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"newsbot/internal/news"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	"newsbot/internal/translate"
	logx "newsbot/pkg/logx"
)

// Source returns the latest articles, newest first. It never fails; an
// unavailable upstream yields an empty slice.
type Source interface {
	Latest(ctx context.Context) []news.Article
}

// Ledger is the persisted set of links already sent.
type Ledger interface {
	Contains(ctx context.Context, link string) (bool, error)
	Record(ctx context.Context, link string) error
}

// Publisher posts a single article.
type Publisher interface {
	Deliver(ctx context.Context, a news.Article, tr publish.Translated) (publish.Result, error)
}

// Prechecker is implemented by publishers that can refuse an article before
// it is translated. A returned error wrapping publish.ErrNoImage skips it.
type Prechecker interface {
	Precheck(ctx context.Context, a news.Article) error
}

type Config struct {
	SourceLanguage string
	TargetLanguage string
}

type Queue struct {
	src    Source
	ledger Ledger
	tr     translate.Translator
	pub    Publisher
	log    logx.Logger
	obs    Observer
	cfg    Config

	mu    sync.Mutex
	items []news.Article
	// pending holds links that were delivered but could not be recorded.
	// They count as sent until Record succeeds.
	pending map[string]struct{}
	order   []string
	// skipped holds links the publisher refused. They are not queued again
	// for the life of the process and are never recorded.
	skipped map[string]struct{}
}

type Option func(*Queue)

func WithObserver(o Observer) Option {
	return func(q *Queue) {
		if o != nil {
			q.obs = o
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(q *Queue) {
		if !log.IsZero() {
			q.log = log
		}
	}
}

func New(cfg Config, src Source, ledger Ledger, tr translate.Translator, pub Publisher, opts ...Option) *Queue {
	if cfg.SourceLanguage == "" {
		cfg.SourceLanguage = "en"
	}
	if tr == nil {
		tr = translate.Identity{}
	}
	q := &Queue{
		src:     src,
		ledger:  ledger,
		tr:      tr,
		pub:     pub,
		log:     logx.Nop(),
		obs:     nopObserver{},
		cfg:     cfg,
		pending: map[string]struct{}{},
		skipped: map[string]struct{}{},
	}
	for _, o := range opts {
		if o != nil {
			o(q)
		}
	}
	return q
}

// Len returns the number of queued articles.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queue in delivery order.
func (q *Queue) Snapshot() []news.Article {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]news.Article, len(q.items))
	copy(out, q.items)
	return out
}

// Pending returns the delivered links still waiting to be recorded.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.order...)
}

// FillIfEmpty fetches a new batch when the queue is empty and returns the
// number of articles queued. It is a no-op when the queue holds anything.
func (q *Queue) FillIfEmpty(ctx context.Context) int {
	if n := q.Len(); n > 0 {
		q.log.Debug("queue not empty, skipping fetch", logx.Int("queued", n))
		return 0
	}

	batch := q.src.Latest(ctx)
	q.obs.Fetched(len(batch))
	if len(batch) == 0 {
		q.log.Info("no articles fetched")
		return 0
	}

	seen := make(map[string]struct{}, len(batch))
	fresh := make([]news.Article, 0, len(batch))
	var unschedulable, known, refused int
	for _, a := range batch {
		if !a.Schedulable() {
			unschedulable++
			continue
		}
		if _, dup := seen[a.Link]; dup {
			known++
			continue
		}
		seen[a.Link] = struct{}{}
		if q.isSkipped(a.Link) {
			refused++
			continue
		}
		if q.isPending(a.Link) {
			known++
			continue
		}
		ok, err := q.ledger.Contains(ctx, a.Link)
		if err != nil {
			// Kept; DrainOne checks the ledger again before delivery.
			q.log.Warn("ledger lookup failed during fill", logx.String("link", a.Link), logx.Err(err))
		}
		if ok {
			known++
			continue
		}
		fresh = append(fresh, a)
	}

	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}

	q.mu.Lock()
	q.items = fresh
	q.mu.Unlock()

	q.obs.Queued(len(fresh))
	q.obs.QueueLength(len(fresh))
	q.log.Info("queue filled",
		logx.Int("fetched", len(batch)),
		logx.Int("queued", len(fresh)),
		logx.Int("already_sent", known),
		logx.Int("unschedulable", unschedulable),
		logx.Int("skipped", refused),
	)
	return len(fresh)
}

// DrainOne delivers the head of the queue.
func (q *Queue) DrainOne(ctx context.Context) Outcome {
	a, ok := q.pop()
	if !ok {
		q.log.Debug("queue empty, nothing to send")
		return q.finish(OutcomeIdle)
	}
	log := q.log.With(logx.String("link", a.Link))

	if q.isPending(a.Link) {
		log.Info("article already sent, dropping")
		return q.finish(OutcomeStale)
	}
	sent, err := q.ledger.Contains(ctx, a.Link)
	if err != nil {
		log.Warn("ledger lookup failed, treating link as unsent", logx.Err(err))
	}
	if sent {
		log.Info("article already sent, dropping")
		return q.finish(OutcomeStale)
	}

	if pc, ok := q.pub.(Prechecker); ok {
		if err := pc.Precheck(ctx, a); err != nil && errors.Is(err, publish.ErrNoImage) {
			q.addSkipped(a.Link)
			log.Info("article skipped, no valid image", logx.Err(err))
			return q.finish(OutcomeSkipped)
		}
	}

	fields, failed := translate.Fields(ctx, q.tr, log, q.cfg.SourceLanguage, q.cfg.TargetLanguage, a.Title, a.Snippet)
	if failed > 0 {
		q.obs.TranslationFallbacks(failed)
	}
	tr := publish.Translated{Title: fields[0], Snippet: fields[1]}

	start := time.Now()
	res, err := q.pub.Deliver(ctx, a, tr)
	if err != nil {
		if res.Mode == publish.ModeSkipped && errors.Is(err, publish.ErrNoImage) {
			q.addSkipped(a.Link)
			log.Info("article skipped, no valid image", logx.Err(err))
			return q.finish(OutcomeSkipped)
		}
		q.requeue(a)
		log.Warn("delivery failed, article returned to queue head", logx.Err(err), logx.Duration("took", time.Since(start)))
		return q.finish(OutcomeRequeued)
	}

	if err := q.ledger.Record(ctx, a.Link); err != nil {
		if errors.Is(err, storage.ErrInvalidLink) {
			log.Error("article sent but its link cannot be recorded", logx.Err(err))
			return q.finish(OutcomeUnrecorded)
		}
		q.addPending(a.Link)
		log.Error("article sent but ledger write failed, holding link in memory", logx.Err(err))
		return q.finish(OutcomeUnrecorded)
	}
	log.Info("article delivered",
		logx.String("title", a.Title),
		logx.String("mode", string(res.Mode)),
		logx.Duration("took", time.Since(start)),
	)
	return q.finish(OutcomeDelivered)
}

// Tick runs one scheduler step: retry pending ledger writes, refill if
// empty, then deliver at most one article. Panics are recovered and logged.
func (q *Queue) Tick(ctx context.Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue tick panic: %v", r)
			q.log.Error("queue tick panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out = OutcomeIdle
		}
	}()
	q.FlushPending(ctx)
	q.FillIfEmpty(ctx)
	return q.DrainOne(ctx), nil
}

// FlushPending retries recording links that were delivered while the ledger
// was failing. It stops at the first write failure and returns the number
// still pending. Links the ledger refuses as invalid are dropped.
func (q *Queue) FlushPending(ctx context.Context) int {
	for _, link := range q.Pending() {
		if err := q.ledger.Record(ctx, link); err != nil {
			if errors.Is(err, storage.ErrInvalidLink) {
				q.removePending(link)
				q.log.Error("dropping pending link the ledger cannot store", logx.String("link", link), logx.Err(err))
				continue
			}
			q.log.Warn("ledger still failing for delivered link", logx.String("link", link), logx.Err(err))
			break
		}
		q.removePending(link)
		q.log.Info("delivered link recorded", logx.String("link", link))
	}
	return len(q.Pending())
}

func (q *Queue) finish(o Outcome) Outcome {
	q.obs.Outcome(o)
	q.obs.QueueLength(q.Len())
	return o
}

func (q *Queue) pop() (news.Article, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return news.Article{}, false
	}
	a := q.items[0]
	q.items[0] = news.Article{}
	q.items = q.items[1:]
	return a, true
}

func (q *Queue) requeue(a news.Article) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]news.Article{a}, q.items...)
}

func (q *Queue) isPending(link string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[link]
	return ok
}

func (q *Queue) isSkipped(link string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.skipped[link]
	return ok
}

func (q *Queue) addSkipped(link string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.skipped[link] = struct{}{}
}

func (q *Queue) addPending(link string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[link]; ok {
		return
	}
	q.pending[link] = struct{}{}
	q.order = append(q.order, link)
}

func (q *Queue) removePending(link string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, link)
	for i, l := range q.order {
		if l == link {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}
