/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the interface between the domain logic and the database. The
  relational store holds verification headers, a normalized per-line mirror
  for querying, and the audit log. Implementations must write header and
  mirror rows in ONE database transaction.

CONFLICT DETECTION:
  Insert must fail with ErrNumberConflict when (series, fiscal_year, number)
  already exists. That unique index is the only serialization point for
  concurrent number allocation; the service layers a bounded retry on top.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite store

SEE ALSO:
  - sequence.go: Number allocation on top of MaxNumber
  - periodlock.go: Month lock queries on top of AnyLockedInMonth
*/
package bookkeeping

import (
	"context"
	"time"
)

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	Series     string
	FiscalYear int
	From       *time.Time
	To         *time.Time
}

// Store handles persistence of verifications.
type Store interface {
	// Insert persists a verification header together with its normalized
	// entry rows, atomically. Returns ErrNumberConflict if the
	// (series, fiscal_year, number) slot is already taken.
	Insert(ctx context.Context, v Verification) error

	// Update replaces the stored verification (header and entry rows) in one
	// transaction. The (series, fiscal_year, number) identity never changes.
	Update(ctx context.Context, v Verification) error

	// Delete removes the verification and its entry rows.
	Delete(ctx context.Context, id string) error

	// GetByID returns the verification or (nil, nil) when absent.
	GetByID(ctx context.Context, id string) (*Verification, error)

	// List returns verifications matching the filter, ordered by date then
	// series and number.
	List(ctx context.Context, f Filter) ([]Verification, error)

	// MaxNumber returns the highest allocated number for the series within
	// the fiscal year, 0 when none exist.
	MaxNumber(ctx context.Context, series string, fiscalYear int) (int, error)

	// AnyLockedInMonth reports whether any verification dated in the given
	// calendar month carries the lock flag.
	AnyLockedInMonth(ctx context.Context, year int, month time.Month) (bool, error)
}
