package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Lister is implemented by ledgers that can enumerate their contents.
type Lister interface {
	Links(ctx context.Context) ([]string, error)
}

// ImportStats summarizes an Import run.
type ImportStats struct {
	Read     int
	Imported int
	Skipped  int // blank, malformed, or already present
}

// Import copies a newline-delimited link log into dst, skipping links that
// dst already holds. It is used to migrate a legacy sent_links.txt into
// another driver without losing the append-only history.
func Import(ctx context.Context, dst Ledger, r io.Reader) (ImportStats, error) {
	var st ImportStats
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		st.Read++
		ok, err := dst.Contains(ctx, line)
		if err != nil {
			return st, err
		}
		if ok {
			st.Skipped++
			continue
		}
		if err := dst.Record(ctx, line); err != nil {
			if errors.Is(err, ErrInvalidLink) {
				st.Skipped++
				continue
			}
			return st, err
		}
		st.Imported++
	}
	if err := s.Err(); err != nil {
		return st, fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}
	return st, nil
}

// ImportFile is Import reading from a file path.
func ImportFile(ctx context.Context, dst Ledger, path string) (ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportStats{}, err
	}
	defer f.Close()
	return Import(ctx, dst, f)
}
