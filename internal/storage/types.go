package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLedgerRead wraps failures reading the backing store (other than "does not exist").
	ErrLedgerRead = errors.New("ledger read failed")
	// ErrLedgerWrite wraps failures persisting a link.
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrInvalidLink is returned for links that cannot be stored one-per-line.
	ErrInvalidLink = errors.New("invalid link")
	ErrClosed      = errors.New("ledger closed")
)

// Ledger is the durable set of already-delivered links.
type Ledger interface {
	// Contains reports whether link was recorded before.
	Contains(ctx context.Context, link string) (bool, error)
	// Record durably appends link. It returns only after the write is flushed.
	Record(ctx context.Context, link string) error
	Close() error
}

// Config configures the ledger.
//
// Driver values:
//   - "file" (default): newline-delimited text log
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
