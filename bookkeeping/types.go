/*
Package bookkeeping provides the double-entry ledger core.

PURPOSE:
  This package contains the types and rules for recording verifications
  (double-entry journal postings) under Swedish bookkeeping law. A posted
  verification is never edited once its month has been closed - mistakes
  are amended by booking a reversal plus a corrected replacement.

KEY CONCEPTS IN THIS FILE (types.go):
  - Verification: an immutable-once-posted journal record
  - Entry: a single debit/credit line against a BAS account
  - Draft / Patch: inputs to the service's create and update operations
  - AuditEntry: fire-and-forget audit trail records

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all monetary amounts, never float
  2. Immutability: locked months reject every mutation path
  3. Gapless numbering: per (series, fiscal year), strictly increasing
     under non-concurrent operation, never duplicated under concurrency
  4. Auditability: every create/update/delete emits an audit entry

SEE ALSO:
  - service.go: The orchestrating verification service
  - store.go: Persistence interface
  - errors.go: Error taxonomy
*/
package bookkeeping

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// VERIFICATION - Double-entry journal record
// =============================================================================

// balanceTolerance is the maximum accepted difference between total debit
// and total credit, in currency units.
var balanceTolerance = decimal.NewFromFloat(0.01)

// Verification is a single journal posting. Identity within a fiscal year
// is (Series, Number); Number is allocated by the sequence allocator and
// unique per (Series, FiscalYear).
type Verification struct {
	ID          string
	Series      string
	Number      int
	Date        time.Time
	Description string
	FiscalYear  int // derived from Date

	// Optional provenance link to the business event behind the posting,
	// e.g. ("customer_invoice", "inv-42") or ("correction", "<verification id>").
	SourceType string
	SourceID   string

	// IsLocked is set by the external month-end close process. The core
	// only ever reads it.
	IsLocked  bool
	CreatedAt time.Time

	// Entries is the ordered, non-empty set of debit/credit lines.
	Entries []Entry
}

// Entry is one line of a verification against a BAS chart-of-accounts code.
// Debit and Credit are both >= 0; a line uses one side or the other.
type Entry struct {
	Account     string // BAS code, e.g. "2610"
	AccountName string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// TotalDebit sums the debit side of all entries.
func (v *Verification) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, e := range v.Entries {
		total = total.Add(e.Debit)
	}
	return total
}

// TotalCredit sums the credit side of all entries.
func (v *Verification) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, e := range v.Entries {
		total = total.Add(e.Credit)
	}
	return total
}

// IsBalanced reports whether debits equal credits within tolerance.
func (v *Verification) IsBalanced() bool {
	return v.TotalDebit().Sub(v.TotalCredit()).Abs().LessThanOrEqual(balanceTolerance)
}

// FiscalYearOf derives the fiscal year from a posting date.
// Calendar-year fiscal years only; split fiscal years are out of scope.
func FiscalYearOf(date time.Time) int {
	return date.Year()
}

// =============================================================================
// SERVICE INPUTS
// =============================================================================

// Draft is the input to Service.Create. Number, ID and CreatedAt are
// assigned by the service.
type Draft struct {
	Series      string
	Date        time.Time
	Description string
	Entries     []Entry
	SourceType  string
	SourceID    string
}

// Patch is the input to Service.Update. Nil fields are left unchanged.
type Patch struct {
	Description *string
	Date        *time.Time
	Entries     []Entry // nil = unchanged; empty slice is rejected
}

// =============================================================================
// AUDIT LOG - Append-only, fire-and-forget
// =============================================================================

type AuditAction string

const (
	AuditVerificationCreated AuditAction = "verification_created"
	AuditVerificationUpdated AuditAction = "verification_updated"
	AuditVerificationDeleted AuditAction = "verification_deleted"
	AuditCorrectionBooked    AuditAction = "correction_booked"
	AuditYearClosed          AuditAction = "year_closed"
)

// AuditEntry records who did what to which record. Failures writing audit
// entries are logged and swallowed; the sink is assumed durable but is
// never allowed to fail a posting.
type AuditEntry struct {
	ID         string
	Action     AuditAction
	EntityType string
	EntityID   string
	EntityName string
	Metadata   map[string]string
	CreatedAt  time.Time
}

// AuditLog is the append-only audit sink.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
