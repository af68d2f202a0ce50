/*
Package sqlite provides the SQLite-backed Ledger Repository.

PURPOSE:
  Implements bookkeeping.Store and bookkeeping.AuditLog. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  verifications:        Header rows with a denormalized entries JSON copy
  verification_entries: Normalized per-line mirror for relational querying
  audit_log:            Append-only audit trail

  Header and mirror rows are written in ONE database transaction, so the
  two representations can never disagree.

CONFLICT DETECTION:
  The unique index on (series, fiscal_year, number) is the serialization
  point for concurrent number allocation. Insert surfaces a violation as
  bookkeeping.ErrNumberConflict; the service retries allocation on top.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/ledger.db")   // ":memory:" for tests
  svc := bookkeeping.NewService(store, bookkeeping.WithAuditLog(store))

SEE ALSO:
  - bookkeeping/store.go: Interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fjorda/ledger-engine/bookkeeping"
)

const dateLayout = "2006-01-02"

// Store implements bookkeeping.Store and bookkeeping.AuditLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second pooled connection to ":memory:" would open its own empty
	// database, so pin the pool to one connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Verification headers. entries_json is a denormalized copy of the
	-- mirror rows, written in the same transaction.
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		series TEXT NOT NULL,
		number INTEGER NOT NULL,
		date TEXT NOT NULL,
		description TEXT,
		entries_json TEXT NOT NULL,
		source_type TEXT,
		source_id TEXT,
		total_amount TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		is_locked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the allocation conflict detector. Two concurrent creates
	-- racing between "read next number" and "insert row" collide here.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_verifications_series_year_number
		ON verifications(series, fiscal_year, number);

	CREATE INDEX IF NOT EXISTS idx_verifications_date
		ON verifications(date);
	CREATE INDEX IF NOT EXISTS idx_verifications_fiscal_year
		ON verifications(fiscal_year);
	-- Period lock queries scan one month of lock flags
	CREATE INDEX IF NOT EXISTS idx_verifications_locked_date
		ON verifications(date) WHERE is_locked;

	-- Normalized per-line mirror
	CREATE TABLE IF NOT EXISTS verification_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		verification_id TEXT NOT NULL REFERENCES verifications(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		account TEXT NOT NULL,
		account_name TEXT,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		description TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_verification
		ON verification_entries(verification_id);
	CREATE INDEX IF NOT EXISTS idx_entries_account
		ON verification_entries(account);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		entity_name TEXT,
		metadata_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_type, entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VERIFICATION STORE (bookkeeping.Store interface)
// =============================================================================

// Insert persists header and entry rows atomically.
func (s *Store) Insert(ctx context.Context, v bookkeeping.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertHeader(ctx, tx, v); err != nil {
		return err
	}
	if err := insertEntries(ctx, tx, v); err != nil {
		return err
	}

	return tx.Commit()
}

func insertHeader(ctx context.Context, tx *sql.Tx, v bookkeeping.Verification) error {
	entriesJSON, err := json.Marshal(v.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	query := `
		INSERT INTO verifications
		(id, series, number, date, description, entries_json, source_type, source_id,
		 total_amount, fiscal_year, is_locked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		v.ID,
		v.Series,
		v.Number,
		v.Date.Format(dateLayout),
		v.Description,
		string(entriesJSON),
		nullString(v.SourceType),
		nullString(v.SourceID),
		v.TotalDebit().String(),
		v.FiscalYear,
		v.IsLocked,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s/%d number %d: %w", v.Series, v.FiscalYear, v.Number, bookkeeping.ErrNumberConflict)
		}
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, v bookkeeping.Verification) error {
	query := `
		INSERT INTO verification_entries
		(verification_id, position, account, account_name, debit, credit, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, e := range v.Entries {
		_, err := tx.ExecContext(ctx, query,
			v.ID, i, e.Account, nullString(e.AccountName),
			e.Debit.String(), e.Credit.String(), nullString(e.Description),
		)
		if err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}
	return nil
}

// Update replaces header fields and entry rows in one transaction.
func (s *Store) Update(ctx context.Context, v bookkeeping.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entriesJSON, err := json.Marshal(v.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE verifications
		SET date = ?, description = ?, entries_json = ?, total_amount = ?, fiscal_year = ?
		WHERE id = ?`,
		v.Date.Format(dateLayout),
		v.Description,
		string(entriesJSON),
		v.TotalDebit().String(),
		v.FiscalYear,
		v.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s/%d number %d: %w", v.Series, v.FiscalYear, v.Number, bookkeeping.ErrNumberConflict)
		}
		return fmt.Errorf("failed to update verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("verification %s: %w", v.ID, bookkeeping.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM verification_entries WHERE verification_id = ?", v.ID); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}
	if err := insertEntries(ctx, tx, v); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes the verification and its entry rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM verification_entries WHERE verification_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM verifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("verification %s: %w", id, bookkeeping.ErrNotFound)
	}

	return tx.Commit()
}

// GetByID returns the verification or (nil, nil) when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*bookkeeping.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, series, number, date, description, source_type, source_id,
		       fiscal_year, is_locked, created_at
		FROM verifications WHERE id = ?`, id)

	v, err := scanVerification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if v.Entries, err = s.loadEntries(ctx, v.ID); err != nil {
		return nil, err
	}
	return v, nil
}

// List returns verifications matching the filter, ordered by date, series
// and number. Entries come from the normalized mirror.
func (s *Store) List(ctx context.Context, f bookkeeping.Filter) ([]bookkeeping.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, series, number, date, description, source_type, source_id,
		       fiscal_year, is_locked, created_at
		FROM verifications WHERE 1=1`
	var args []any

	if f.Series != "" {
		query += " AND series = ?"
		args = append(args, f.Series)
	}
	if f.FiscalYear != 0 {
		query += " AND fiscal_year = ?"
		args = append(args, f.FiscalYear)
	}
	if f.From != nil {
		query += " AND date >= ?"
		args = append(args, f.From.Format(dateLayout))
	}
	if f.To != nil {
		query += " AND date <= ?"
		args = append(args, f.To.Format(dateLayout))
	}
	query += " ORDER BY date ASC, series ASC, number ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	var vs []bookkeeping.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		vs = append(vs, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range vs {
		entries, err := s.loadEntries(ctx, vs[i].ID)
		if err != nil {
			return nil, err
		}
		vs[i].Entries = entries
	}
	return vs, nil
}

// MaxNumber returns the highest allocated number, 0 when none exist.
func (s *Store) MaxNumber(ctx context.Context, series string, fiscalYear int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(number), 0) FROM verifications WHERE series = ? AND fiscal_year = ?",
		series, fiscalYear,
	).Scan(&max)
	return max, err
}

// AnyLockedInMonth reports whether the month holds any locked verification.
func (s *Store) AnyLockedInMonth(ctx context.Context, year int, month time.Month) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM verifications WHERE is_locked AND date >= ? AND date < ?",
		from.Format(dateLayout), to.Format(dateLayout),
	).Scan(&count)
	return count > 0, err
}

// LockMonth sets the lock flag on every verification in the month. The
// month-end close itself is external to the core; this is the hook it (and
// the test suite) uses.
func (s *Store) LockMonth(ctx context.Context, year int, month time.Month) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	_, err := s.db.ExecContext(ctx,
		"UPDATE verifications SET is_locked = TRUE WHERE date >= ? AND date < ?",
		from.Format(dateLayout), to.Format(dateLayout),
	)
	return err
}

// CountInMonth returns the number of verifications dated in the month.
func (s *Store) CountInMonth(ctx context.Context, year int, month time.Month) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM verifications WHERE date >= ? AND date < ?",
		from.Format(dateLayout), to.Format(dateLayout),
	).Scan(&count)
	return count, err
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVerification(row rowScanner) (*bookkeeping.Verification, error) {
	var (
		v          bookkeeping.Verification
		date       string
		sourceType sql.NullString
		sourceID   sql.NullString
		createdAt  string
	)

	err := row.Scan(
		&v.ID, &v.Series, &v.Number, &date, &v.Description,
		&sourceType, &sourceID, &v.FiscalYear, &v.IsLocked, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	v.Date, _ = time.Parse(dateLayout, date)
	v.SourceType = sourceType.String
	v.SourceID = sourceID.String
	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &v, nil
}

func (s *Store) loadEntries(ctx context.Context, verificationID string) ([]bookkeeping.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, account_name, debit, credit, description
		FROM verification_entries
		WHERE verification_id = ?
		ORDER BY position ASC`, verificationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []bookkeeping.Entry
	for rows.Next() {
		var (
			e           bookkeeping.Entry
			accountName sql.NullString
			debit       string
			credit      string
			description sql.NullString
		)
		if err := rows.Scan(&e.Account, &accountName, &debit, &credit, &description); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.AccountName = accountName.String
		e.Description = description.String
		e.Debit = mustDecimal(debit)
		e.Credit = mustDecimal(credit)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// AUDIT LOG (bookkeeping.AuditLog interface)
// =============================================================================

// AppendAudit writes one audit entry. Append-only; no update or delete.
func (s *Store) AppendAudit(ctx context.Context, entry bookkeeping.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, _ := json.Marshal(entry.Metadata)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, entity_type, entity_id, entity_name, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		nullString(entry.EntityName),
		string(metadataJSON),
		entry.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns audit entries for an entity, oldest first.
func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]bookkeeping.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, entity_name, metadata_json, created_at
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, rowid ASC`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []bookkeeping.AuditEntry
	for rows.Next() {
		var (
			e            bookkeeping.AuditEntry
			entityName   sql.NullString
			metadataJSON sql.NullString
			createdAt    string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &entityName, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.EntityName = entityName.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
