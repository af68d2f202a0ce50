/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error kinds in one place. Callers classify with errors.Is / errors.As;
  human-language messages are produced only at the presentation boundary.

ERROR CATEGORIES:
  1. PeriodLocked  - mutation targets a closed calendar month
  2. NotFound      - referenced verification does not exist
  3. NumberConflict - transient allocation race (retried once internally)
  4. Validation    - malformed or unbalanced input, rejected before any write

SEE ALSO:
  - service.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package bookkeeping

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPeriodLocked is returned when a create, update or delete targets a
	// calendar month that has been closed. Never retried.
	ErrPeriodLocked = errors.New("period is locked")

	// ErrNotFound is returned when a referenced verification does not exist.
	ErrNotFound = errors.New("verification not found")

	// ErrNumberConflict is returned by the store when an insert collides on
	// (series, fiscal_year, number). The service retries allocation a bounded
	// number of times before escalating.
	ErrNumberConflict = errors.New("verification number conflict")

	// ErrValidation is returned for malformed input: missing series, empty
	// entry set, negative amounts, unbalanced totals.
	ErrValidation = errors.New("validation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodLockedError identifies which month rejected the mutation.
type PeriodLockedError struct {
	Year  int
	Month time.Month
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period %d-%02d is locked", e.Year, int(e.Month))
}

func (e *PeriodLockedError) Unwrap() error { return ErrPeriodLocked }

// UnbalancedError reports a debit/credit mismatch beyond tolerance.
type UnbalancedError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

func (e *UnbalancedError) Error() string {
	return fmt.Sprintf("verification is not balanced: debit %s, credit %s",
		e.TotalDebit.String(), e.TotalCredit.String())
}

func (e *UnbalancedError) Unwrap() error { return ErrValidation }

// NotLatestError is returned when deleting a verification that is not the
// most recently numbered in its (series, fiscal year). Deleting from the
// middle of a series would leave a gap in the number sequence.
type NotLatestError struct {
	Series     string
	FiscalYear int
	Number     int
	Latest     int
}

func (e *NotLatestError) Error() string {
	return fmt.Sprintf("verification %s%d is not the latest in series %s/%d (latest is %d); book a correction instead",
		e.Series, e.Number, e.Series, e.FiscalYear, e.Latest)
}

func (e *NotLatestError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsPeriodLocked reports whether err is a closed-month rejection.
func IsPeriodLocked(err error) bool { return errors.Is(err, ErrPeriodLocked) }

// IsNotFound reports whether err indicates a missing verification.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a number allocation collision.
func IsConflict(err error) bool { return errors.Is(err, ErrNumberConflict) }

// IsValidation reports whether err is a client input error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
