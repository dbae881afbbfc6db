// Package storage persists the set of links that were already delivered.
//
// The ledger is append-only: links are recorded after a successful delivery
// and never removed. Two drivers exist:
//   - "file": newline-delimited text log, re-read in full on every lookup
//   - "sqlite": single-table SQLite database (modernc.org/sqlite, no cgo)
//
// A missing backing store reads as an empty set. Write failures are always
// returned to the caller.
package storage
