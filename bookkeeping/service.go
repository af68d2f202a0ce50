/*
service.go - Verification service, the orchestrating component

PURPOSE:
  Creates, reads, updates and deletes verifications while enforcing the
  legal invariants: no postings into locked months, gapless sequential
  numbering per (series, fiscal year), balanced entry sets.

CREATE FLOW:
  1. Validate the draft (series, entries, amounts, balance)
  2. Reject if the posting month is locked
  3. Allocate the next number for (series, fiscal year)
  4. Insert header + normalized entry rows in one DB transaction
  5. Emit an audit entry (fire-and-forget)

CONCURRENCY:
  The only race is allocate-then-insert: two callers can read the same next
  number before either inserts. The store's unique index rejects the loser
  with ErrNumberConflict and the service re-allocates, bounded by
  retryLimit (default 1). This is optimistic concurrency, not a lock.

DELETION POLICY:
  Only the most recently numbered verification of its (series, fiscal year)
  may be deleted, and only while its month is open. Anything older must be
  amended through the correction engine so the audit trail stays complete
  and the number sequence stays gapless.

SEE ALSO:
  - correction.go: Reversal + replacement amendment path
  - closing.go: Year-end closing postings
  - sequence.go, periodlock.go: The two supporting guards
*/
package bookkeeping

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjorda/ledger-engine/observability"
)

// defaultRetryLimit bounds re-allocation after a number collision.
const defaultRetryLimit = 1

// Service orchestrates all verification mutations. It is stateless between
// calls; shared mutable state lives in the Store.
type Service struct {
	store     Store
	allocator *SequenceAllocator
	guard     *LockGuard

	audit      AuditLog
	log        *zap.Logger
	metrics    *observability.Metrics
	retryLimit int
	now        func() time.Time
}

// ServiceOption configures optional service dependencies.
type ServiceOption func(*Service)

// WithAuditLog attaches the fire-and-forget audit sink.
func WithAuditLog(audit AuditLog) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithRetryLimit overrides the number-conflict retry bound.
func WithRetryLimit(n int) ServiceOption {
	return func(s *Service) {
		if n >= 0 {
			s.retryLimit = n
		}
	}
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		allocator:  NewSequenceAllocator(store),
		guard:      NewLockGuard(store),
		log:        zap.NewNop(),
		retryLimit: defaultRetryLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// CREATE
// =============================================================================

// Create posts a new verification. The returned record carries the
// allocated number and computed totals.
func (s *Service) Create(ctx context.Context, draft Draft) (*Verification, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	locked, err := s.guard.IsLocked(ctx, draft.Date)
	if err != nil {
		return nil, fmt.Errorf("period lock check: %w", err)
	}
	if locked {
		s.metrics.IncrLockRejection("create")
		return nil, &PeriodLockedError{Year: draft.Date.Year(), Month: draft.Date.Month()}
	}

	fiscalYear := FiscalYearOf(draft.Date)

	var v *Verification
	for attempt := 0; ; attempt++ {
		number, err := s.allocator.NextNumber(ctx, draft.Series, fiscalYear)
		if err != nil {
			return nil, fmt.Errorf("allocate number: %w", err)
		}

		v = &Verification{
			ID:          uuid.New().String(),
			Series:      draft.Series,
			Number:      number,
			Date:        draft.Date,
			Description: draft.Description,
			FiscalYear:  fiscalYear,
			SourceType:  draft.SourceType,
			SourceID:    draft.SourceID,
			CreatedAt:   s.now().UTC(),
			Entries:     draft.Entries,
		}

		err = s.store.Insert(ctx, *v)
		if err == nil {
			break
		}
		if !IsConflict(err) {
			return nil, err
		}
		if attempt >= s.retryLimit {
			return nil, fmt.Errorf("number allocation for %s/%d exhausted %d retries: %w",
				draft.Series, fiscalYear, s.retryLimit, ErrNumberConflict)
		}
		s.metrics.IncrNumberConflict()
		s.log.Debug("verification number collision, retrying",
			zap.String("series", draft.Series),
			zap.Int("fiscal_year", fiscalYear),
			zap.Int("number", number))
	}

	s.metrics.IncrVerificationCreated(v.Series)
	s.emitAudit(ctx, AuditVerificationCreated, v, nil)
	return v, nil
}

// =============================================================================
// READ
// =============================================================================

// GetByID returns the verification or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*Verification, error) {
	v, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("verification %s: %w", id, ErrNotFound)
	}
	return v, nil
}

// List returns verifications matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Verification, error) {
	return s.store.List(ctx, f)
}

// NextNumber exposes the allocator primitive for sibling engines.
func (s *Service) NextNumber(ctx context.Context, series string, fiscalYear int) (int, error) {
	return s.allocator.NextNumber(ctx, series, fiscalYear)
}

// IsPeriodLocked exposes the lock guard for sibling engines.
func (s *Service) IsPeriodLocked(ctx context.Context, date time.Time) (bool, error) {
	return s.guard.IsLocked(ctx, date)
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies a partial update. Both the existing month and, when the
// date moves, the destination month must be open.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Verification, error) {
	v, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	locked, err := s.guard.IsLocked(ctx, v.Date)
	if err != nil {
		return nil, fmt.Errorf("period lock check: %w", err)
	}
	if locked {
		s.metrics.IncrLockRejection("update")
		return nil, &PeriodLockedError{Year: v.Date.Year(), Month: v.Date.Month()}
	}

	if patch.Date != nil {
		// The number belongs to (series, fiscal year); moving the date across
		// years would carry it into another sequence. Amend via the correction
		// engine instead.
		if FiscalYearOf(*patch.Date) != v.FiscalYear {
			return nil, fmt.Errorf("cannot move %s%d from fiscal year %d to %d: %w",
				v.Series, v.Number, v.FiscalYear, FiscalYearOf(*patch.Date), ErrValidation)
		}
		if !sameMonth(*patch.Date, v.Date) {
			destLocked, err := s.guard.IsLocked(ctx, *patch.Date)
			if err != nil {
				return nil, fmt.Errorf("period lock check: %w", err)
			}
			if destLocked {
				s.metrics.IncrLockRejection("update")
				return nil, &PeriodLockedError{Year: patch.Date.Year(), Month: patch.Date.Month()}
			}
		}
	}

	if patch.Description != nil {
		v.Description = *patch.Description
	}
	if patch.Date != nil {
		v.Date = *patch.Date
	}
	if patch.Entries != nil {
		if err := validateEntries(patch.Entries); err != nil {
			return nil, err
		}
		v.Entries = patch.Entries
	}
	if !v.IsBalanced() {
		return nil, &UnbalancedError{TotalDebit: v.TotalDebit(), TotalCredit: v.TotalCredit()}
	}

	if err := s.store.Update(ctx, *v); err != nil {
		return nil, err
	}

	s.emitAudit(ctx, AuditVerificationUpdated, v, nil)
	return v, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes an unlocked verification, but only the latest-numbered of
// its (series, fiscal year). Everything older is immutable once posted and
// must be amended via the correction engine.
func (s *Service) Delete(ctx context.Context, id string) error {
	v, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	locked, err := s.guard.IsLocked(ctx, v.Date)
	if err != nil {
		return fmt.Errorf("period lock check: %w", err)
	}
	if locked {
		s.metrics.IncrLockRejection("delete")
		return &PeriodLockedError{Year: v.Date.Year(), Month: v.Date.Month()}
	}

	latest, err := s.store.MaxNumber(ctx, v.Series, v.FiscalYear)
	if err != nil {
		return err
	}
	if v.Number != latest {
		return &NotLatestError{Series: v.Series, FiscalYear: v.FiscalYear, Number: v.Number, Latest: latest}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.emitAudit(ctx, AuditVerificationDeleted, v, nil)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// emitAudit appends an audit entry, fire-and-forget. Sink failures are
// logged, never propagated to the caller.
func (s *Service) emitAudit(ctx context.Context, action AuditAction, v *Verification, extra map[string]string) {
	if s.audit == nil {
		return
	}
	metadata := map[string]string{
		"series":      v.Series,
		"number":      strconv.Itoa(v.Number),
		"fiscal_year": strconv.Itoa(v.FiscalYear),
		"total":       v.TotalDebit().String(),
	}
	for k, val := range extra {
		metadata[k] = val
	}
	entry := AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		EntityType: "verification",
		EntityID:   v.ID,
		EntityName: fmt.Sprintf("%s%d", v.Series, v.Number),
		Metadata:   metadata,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		s.log.Warn("audit sink append failed",
			zap.String("action", string(action)),
			zap.String("entity_id", v.ID),
			zap.Error(err))
	}
}

func validateDraft(draft Draft) error {
	if draft.Series == "" {
		return fmt.Errorf("series is required: %w", ErrValidation)
	}
	if draft.Date.IsZero() {
		return fmt.Errorf("date is required: %w", ErrValidation)
	}
	if err := validateEntries(draft.Entries); err != nil {
		return err
	}
	v := Verification{Entries: draft.Entries}
	if !v.IsBalanced() {
		return &UnbalancedError{TotalDebit: v.TotalDebit(), TotalCredit: v.TotalCredit()}
	}
	return nil
}

func validateEntries(entries []Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("at least one entry is required: %w", ErrValidation)
	}
	for i, e := range entries {
		if e.Account == "" {
			return fmt.Errorf("entry %d: account is required: %w", i, ErrValidation)
		}
		if e.Debit.IsNegative() || e.Credit.IsNegative() {
			return fmt.Errorf("entry %d: amounts must be >= 0: %w", i, ErrValidation)
		}
	}
	return nil
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
