package app

import (
	"fmt"
	"strings"
	"time"

	"newsbot/internal/config"
	"newsbot/internal/news"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	"newsbot/internal/task/scheduler"
	"newsbot/internal/translate"
	kit "newsbot/internal/transport"
	"newsbot/internal/transport/telegram"
	logx "newsbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapLedger(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)),
		Path:        strings.TrimSpace(cfg.Ledger.Path),
		BusyTimeout: config.Duration(cfg.Ledger.BusyTimeout, time.Second),
	}
}

func mapNews(cfg *config.Config) news.Config {
	return news.Config{
		Endpoint: cfg.News.Endpoint,
		Host:     cfg.News.Host,
		APIKey:   cfg.News.APIKey,
		Query:    cfg.News.Query,
		Language: cfg.News.Language,
		Sort:     cfg.News.Sort,
		Timeout:  config.Duration(cfg.News.Timeout, 0),
	}
}

func mapTranslator(cfg *config.Config) translate.Translator {
	if !cfg.Translate.IsEnabled() {
		return translate.Identity{}
	}
	return translate.NewGoogle(translate.GoogleConfig{
		Endpoint:      cfg.Translate.Endpoint,
		Timeout:       config.Duration(cfg.Translate.Timeout, 0),
		RatePerSecond: cfg.Translate.RatePerSec,
	}, nil)
}

func mapTelegram(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:         cfg.Telegram.Token,
		APIURL:        cfg.Telegram.APIURL,
		RatePerSecond: cfg.Telegram.RatePerSec,
		Timeout:       config.Duration(cfg.Telegram.Timeout, 0),
	}
}

func mapTarget(cfg *config.Config) (kit.ChatTarget, error) {
	t, ok := kit.ParseChatTarget(cfg.Telegram.ChatID)
	if !ok {
		return kit.ChatTarget{}, fmt.Errorf("%w: telegram.chat_id: invalid value %q", config.ErrConfiguration, cfg.Telegram.ChatID)
	}
	t.ThreadID = cfg.Telegram.ThreadID
	return t, nil
}

func mapPublisher(cfg *config.Config, target kit.ChatTarget) publish.Config {
	pc := cfg.Publisher
	loc := time.Local
	if tz := strings.TrimSpace(pc.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return publish.Config{
		Target:         target,
		ImagePolicy:    pc.ImagePolicy,
		DisablePreview: pc.DisablePreview,
		Renderer: publish.Renderer{
			Layout:      strings.ToLower(strings.TrimSpace(pc.Layout)),
			Language:    pc.Language,
			Footer:      pc.Footer,
			Calendar:    strings.ToLower(strings.TrimSpace(pc.Calendar)),
			Location:    loc,
			MaxHashtags: pc.MaxHashtags,
		},
	}
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Timezone:       cfg.Scheduler.Timezone,
		DefaultTimeout: config.Duration(cfg.Scheduler.Timeout, 0),
		HistorySize:    cfg.Scheduler.HistorySize,
	}
}
