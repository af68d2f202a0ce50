/*
correction.go - Reversal + replacement amendment of posted verifications

PURPOSE:
  A posted verification is a legal record. When one turns out to be wrong,
  it is never edited or deleted; instead two new verifications are booked:

    1. A reversal: every entry with debit and credit swapped, which nets
       the original to zero.
    2. A corrected replacement carrying the intended entries.

  Both go through the normal Service.Create path and are therefore subject
  to the same period lock and numbering rules. The original, the reversal
  and the replacement all remain in the ledger.

SEE ALSO:
  - service.go: Create path both postings run through
*/
package bookkeeping

import (
	"context"
	"fmt"
	"time"
)

// SourceCorrection links reversal and replacement back to the original.
const SourceCorrection = "correction"

// CorrectionEngine books reversal + replacement pairs.
type CorrectionEngine struct {
	svc *Service
}

func NewCorrectionEngine(svc *Service) *CorrectionEngine {
	return &CorrectionEngine{svc: svc}
}

// CorrectionResult holds the two postings produced by a correction.
type CorrectionResult struct {
	Original    *Verification
	Reversal    *Verification
	Replacement *Verification
}

// Correct amends the verification identified by originalID. The corrected
// draft supplies the intended entries; its date defaults to today and its
// series to the original's when unset. Returns ErrNotFound when the
// original does not exist and ErrPeriodLocked when the correction month is
// closed.
func (e *CorrectionEngine) Correct(ctx context.Context, originalID string, corrected Draft) (*CorrectionResult, error) {
	original, err := e.svc.GetByID(ctx, originalID)
	if err != nil {
		return nil, err
	}

	if corrected.Series == "" {
		corrected.Series = original.Series
	}
	if corrected.Date.IsZero() {
		corrected.Date = e.svc.now().UTC().Truncate(24 * time.Hour)
	}

	reversal := Draft{
		Series:      corrected.Series,
		Date:        corrected.Date,
		Description: fmt.Sprintf("Reversal of %s%d", original.Series, original.Number),
		Entries:     reverseEntries(original.Entries),
		SourceType:  SourceCorrection,
		SourceID:    original.ID,
	}

	rev, err := e.svc.Create(ctx, reversal)
	if err != nil {
		return nil, fmt.Errorf("book reversal: %w", err)
	}

	if corrected.Description == "" {
		corrected.Description = fmt.Sprintf("Correction of %s%d", original.Series, original.Number)
	}
	corrected.SourceType = SourceCorrection
	corrected.SourceID = original.ID

	repl, err := e.svc.Create(ctx, corrected)
	if err != nil {
		return nil, fmt.Errorf("book replacement: %w", err)
	}

	e.svc.emitAudit(ctx, AuditCorrectionBooked, original, map[string]string{
		"reversal_id":    rev.ID,
		"replacement_id": repl.ID,
	})

	return &CorrectionResult{Original: original, Reversal: rev, Replacement: repl}, nil
}

// reverseEntries swaps debit and credit on every line.
func reverseEntries(entries []Entry) []Entry {
	reversed := make([]Entry, len(entries))
	for i, e := range entries {
		reversed[i] = Entry{
			Account:     e.Account,
			AccountName: e.AccountName,
			Debit:       e.Credit,
			Credit:      e.Debit,
			Description: e.Description,
		}
	}
	return reversed
}
