package storage

import (
	"fmt"
	"strings"

	logx "newsbot/pkg/logx"
)

// Open initializes the configured ledger. An empty driver selects "file".
func Open(cfg Config, log logx.Logger) (Ledger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown ledger driver: %s", cfg.Driver)
	}
}

func normalizeLink(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLink)
	}
	if strings.ContainsAny(link, "\r\n") {
		return "", fmt.Errorf("%w: contains line break", ErrInvalidLink)
	}
	return link, nil
}
