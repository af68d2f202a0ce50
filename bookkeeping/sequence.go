package bookkeeping

import "context"

// =============================================================================
// SEQUENCE ALLOCATOR - Next verification number per (series, fiscal year)
// =============================================================================

// SequenceAllocator hands out the next verification number for a series
// within a fiscal year. It is safe for concurrent callers in the sense that
// no two callers ever *commit* the same number: the returned candidate is
// only reserved once the insert succeeds, and the store's unique index on
// (series, fiscal_year, number) rejects the loser of a race. Aborted
// attempts may leave gaps; duplicates are impossible.
type SequenceAllocator struct {
	store Store
}

func NewSequenceAllocator(store Store) *SequenceAllocator {
	return &SequenceAllocator{store: store}
}

// NextNumber returns the next free number for (series, fiscalYear).
// Numbering starts at 1.
func (a *SequenceAllocator) NextNumber(ctx context.Context, series string, fiscalYear int) (int, error) {
	max, err := a.store.MaxNumber(ctx, series, fiscalYear)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
