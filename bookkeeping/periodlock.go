package bookkeeping

import (
	"context"
	"time"
)

// =============================================================================
// PERIOD LOCK GUARD - Is a calendar month closed to postings?
// =============================================================================

// LockGuard answers whether a calendar month is closed. A month is locked
// when any verification already posted in it carries the lock flag; the
// act of locking (month-end close) is performed by an external process
// that this core only queries.
type LockGuard struct {
	store Store
}

func NewLockGuard(store Store) *LockGuard {
	return &LockGuard{store: store}
}

// IsLocked reports whether the calendar month containing date is closed.
func (g *LockGuard) IsLocked(ctx context.Context, date time.Time) (bool, error) {
	return g.store.AnyLockedInMonth(ctx, date.Year(), date.Month())
}
