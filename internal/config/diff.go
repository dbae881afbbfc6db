package config

import (
	"reflect"
	"sort"
	"strings"

	logx "newsbot/pkg/logx"
)

// Sections that can be re-applied without a restart.
var liveSections = map[string]bool{"logging": true, "publisher": true}

// ChangeSummary describes the difference between two configs.
type ChangeSummary struct {
	Changed []string
	// Restart lists changed sections that only take effect after a restart.
	Restart []string
	// Attrs are safe to log: secrets are reported as set/unset only.
	Attrs []logx.Field
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) ChangeSummary {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var s ChangeSummary
	mark := func(section string, attrs ...logx.Field) {
		s.Changed = append(s.Changed, section)
		if !liveSections[section] {
			s.Restart = append(s.Restart, section)
		}
		s.Attrs = append(s.Attrs, attrs...)
	}

	// Telegram (never log token)
	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		ot.APIURL != nt.APIURL || ot.RatePerSec != nt.RatePerSec || ot.Timeout != nt.Timeout {
		mark("telegram",
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.chat_id", nt.ChatID),
		)
	}

	// News (never log api key)
	on, nn := oldCfg.News, newCfg.News
	if on != nn {
		mark("news",
			logx.Bool("news.api_key_changed", on.APIKey != nn.APIKey),
			logx.String("news.query", nn.Query),
			logx.String("news.language", nn.Language),
		)
	}

	if !reflect.DeepEqual(oldCfg.Translate, newCfg.Translate) {
		mark("translate",
			logx.Bool("translate.enabled", newCfg.Translate.IsEnabled()),
			logx.String("translate.target", newCfg.Translate.Target),
		)
	}

	if oldCfg.Publisher != newCfg.Publisher {
		mark("publisher",
			logx.String("publisher.layout", newCfg.Publisher.Layout),
			logx.String("publisher.image_policy", newCfg.Publisher.ImagePolicy),
			logx.String("publisher.language", newCfg.Publisher.Language),
		)
	}

	if oldCfg.Ledger != newCfg.Ledger {
		mark("ledger",
			logx.String("ledger.driver", strings.TrimSpace(newCfg.Ledger.Driver)),
			logx.String("ledger.path", strings.TrimSpace(newCfg.Ledger.Path)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler",
			logx.String("scheduler.interval", newCfg.Scheduler.Interval),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		mark("metrics",
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}

	sort.Strings(s.Changed)
	sort.Strings(s.Restart)
	return s
}
