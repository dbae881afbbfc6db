package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "newsbot/pkg/logx"
)

// fileLedger is the dependency-free ledger backend.
//
// The log is one link per line, UTF-8, append-only. Lookups read the whole
// file so that a link appended by another (or a restarted) process is always
// visible. The append handle is opened lazily on the first Record.
type fileLedger struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	f      *os.File
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Ledger, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger path is required for file driver")
	}
	return &fileLedger{log: log, path: path}, nil
}

func (l *fileLedger) Contains(ctx context.Context, link string) (bool, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return false, nil
	}
	found := false
	err := l.scan(ctx, func(line string) bool {
		if line == link {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// Links returns every recorded link in append order.
func (l *fileLedger) Links(ctx context.Context) ([]string, error) {
	var out []string
	err := l.scan(ctx, func(line string) bool {
		out = append(out, line)
		return true
	})
	return out, err
}

func (l *fileLedger) scan(ctx context.Context, fn func(line string) bool) error {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for s.Scan() {
		// Large ledgers: give cancellation a chance every few thousand lines.
		if n++; n%4096 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if !fn(line) {
			return nil
		}
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}
	return nil
}

func (l *fileLedger) Record(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	link, err := normalizeLink(link)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.f == nil {
		if dir := filepath.Dir(l.path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
			}
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
		}
		l.f = f
	}

	if _, err := l.f.WriteString(link + "\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrLedgerWrite, err)
	}
	l.log.Debug("link recorded", logx.String("link", link))
	return nil
}

func (l *fileLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
