// Package app wires the news pipeline together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"newsbot/internal/config"
	"newsbot/internal/metrics"
	"newsbot/internal/news"
	"newsbot/internal/publish"
	"newsbot/internal/queue"
	"newsbot/internal/runtime/supervisor"
	"newsbot/internal/storage"
	"newsbot/internal/task/scheduler"
	kit "newsbot/internal/transport"
	"newsbot/internal/transport/telegram"
	logx "newsbot/pkg/logx"
)

// TickJob is the scheduler name of the fetch-and-post step.
const TickJob = "news.tick"

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log  logx.Logger
	logs *logx.Service
	sup  *supervisor.Supervisor

	ledger  storage.Ledger
	pub     *publish.Publisher
	queue   *queue.Queue
	sched   *scheduler.Service
	metrics *metrics.Collector
	msrv    *metrics.Server

	lastOutcome atomic.Value // queue.Outcome
	lastTickAt  atomic.Int64
}

// Options replaces external collaborators, mainly for tests.
type Options struct {
	Sender     kit.Sender
	Prober     publish.ImageProber
	HTTPClient *http.Client
}

// NewApp loads the configuration at cfgPath (may be empty) plus the
// environment and builds every component. It fails with an error wrapping
// config.ErrConfiguration when required settings are missing.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return New(cfgm, cfg, Options{})
}

// New builds the app from an already loaded config.
func New(cfgm *config.ConfigManager, cfg *config.Config, opts Options) (*App, error) {
	target, err := mapTarget(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	appLog := log.With(logx.String("comp", "app"))

	ledger, err := storage.Open(mapLedger(cfg), log.With(logx.String("comp", "ledger")))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if src := strings.TrimSpace(cfg.Ledger.ImportFrom); src != "" {
		st, err := storage.ImportFile(context.Background(), ledger, src)
		if err != nil {
			_ = ledger.Close()
			return nil, fmt.Errorf("import ledger %s: %w", src, err)
		}
		appLog.Info("ledger imported", logx.String("from", src),
			logx.Int("read", st.Read), logx.Int("imported", st.Imported), logx.Int("skipped", st.Skipped))
	}

	sender := opts.Sender
	if sender == nil {
		tg, err := telegram.New(mapTelegram(cfg), log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = ledger.Close()
			return nil, err
		}
		sender = tg
	}
	prober := opts.Prober
	if prober == nil {
		prober = publish.HeadProber{
			Client:  opts.HTTPClient,
			Timeout: config.Duration(cfg.Publisher.ProbeTimeout, 10*time.Second),
		}
	}
	pub := publish.New(mapPublisher(cfg, target), sender, prober, log.With(logx.String("comp", "publish")))

	col := metrics.New()
	src := news.NewClient(mapNews(cfg), opts.HTTPClient, log.With(logx.String("comp", "news")))
	q := queue.New(queue.Config{
		SourceLanguage: cfg.Translate.Source,
		TargetLanguage: cfg.Translate.Target,
	}, src, ledger, mapTranslator(cfg), pub,
		queue.WithObserver(col),
		queue.WithLogger(log.With(logx.String("comp", "queue"))),
	)

	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		log:     appLog,
		logs:    logSvc,
		ledger:  ledger,
		pub:     pub,
		queue:   q,
		metrics: col,
		sched:   scheduler.New(mapScheduler(cfg), log.With(logx.String("comp", "scheduler"))),
	}
	if err := a.sched.Add(TickJob, cfg.Scheduler.Interval, 0, a.tick); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("%w: scheduler.interval: %v", config.ErrConfiguration, err)
	}
	if cfg.Metrics.Enabled {
		a.msrv = metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr, Pprof: cfg.Metrics.Pprof},
			col, a.health, log.With(logx.String("comp", "metrics")))
	}
	return a, nil
}

func (a *App) Queue() *queue.Queue { return a.queue }

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) tick(ctx context.Context) error {
	out, err := a.queue.Tick(ctx)
	a.lastOutcome.Store(out)
	a.lastTickAt.Store(time.Now().Unix())
	return err
}

func (a *App) health() (map[string]any, error) {
	body := map[string]any{
		"queue_length":  a.queue.Len(),
		"pending_links": len(a.queue.Pending()),
	}
	if ts := a.lastTickAt.Load(); ts > 0 {
		body["last_tick"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	if o, ok := a.lastOutcome.Load().(queue.Outcome); ok {
		body["last_outcome"] = o.String()
	}
	for _, s := range a.sched.Snapshot().Schedules {
		if s.Name == TickJob && !s.Next.IsZero() {
			body["next_tick"] = s.Next.UTC().Format(time.RFC3339)
		}
	}
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			return body, err
		}
	}
	if n := len(a.queue.Pending()); n > 0 {
		return body, fmt.Errorf("%d delivered links not yet recorded", n)
	}
	return body, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if a.msrv != nil {
		if err := a.msrv.Start(); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	a.sched.Start(a.sup.Context())
	if a.cfg.Scheduler.RunOnStart {
		a.sched.RunNow(TickJob)
	}

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(a.validateReload)
		sub := a.cfgm.Subscribe(8)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.GoRestart("config.watch", 250*time.Millisecond, 30*time.Second, a.cfgm.Watch)
	}

	a.log.Info("app started",
		logx.String("interval", a.cfg.Scheduler.Interval),
		logx.String("chat", a.cfg.Telegram.ChatID),
		logx.String("ledger", a.cfg.Ledger.Driver),
	)
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// validateReload rejects a reloaded config whose chat target could not be
// used at the next restart.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	_, err := mapTarget(cfg)
	return err
}

func (a *App) applyConfig(prev, next *config.Config) {
	sum := config.SummarizeConfigChange(prev, next)
	if len(sum.Changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(mapLogging(next))
	a.pub.Apply(mapPublisher(next, kit.ChatTarget{}))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sum.Changed, ","))}, sum.Attrs...)
	a.log.Info("config reloaded", fields...)
	if len(sum.Restart) > 0 {
		a.log.Warn("restart required for some changes", logx.String("sections", strings.Join(sum.Restart, ",")))
	}
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if a.sup != nil {
		a.sup.Cancel()
	}

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("metrics", time.Second, func(c context.Context) error {
		if a.msrv != nil {
			a.msrv.Stop(c)
		}
		return nil
	})
	step("supervisor", 2*time.Second, func(c context.Context) error {
		if a.sup == nil {
			return nil
		}
		if err := a.sup.Wait(c); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	step("ledger", time.Second, func(context.Context) error { return a.ledger.Close() })

	if n := len(a.queue.Pending()); n > 0 {
		a.log.Error("links delivered but never recorded; they may be posted again",
			logx.Any("links", a.queue.Pending()))
	}
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
