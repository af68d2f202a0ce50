/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Monetary
  amounts cross the wire as float64; everything internal stays decimal,
  and the conversions live here so handlers stay thin.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in the service layer, not in DTOs. DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - bookkeeping/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjorda/ledger-engine/bookkeeping"
	"github.com/fjorda/ledger-engine/vat"
)

const dateLayout = "2006-01-02"

// =============================================================================
// VERIFICATION TYPES
// =============================================================================

// EntryDTO represents a single debit/credit row of a verification.
type EntryDTO struct {
	Account     string  `json:"account"`
	AccountName string  `json:"account_name,omitempty"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Description string  `json:"description,omitempty"`
}

// VerificationDTO represents a posted verification in API responses.
type VerificationDTO struct {
	ID          string     `json:"id"`
	Series      string     `json:"series"`
	Number      int        `json:"number"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	FiscalYear  int        `json:"fiscal_year"`
	SourceType  string     `json:"source_type,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
	IsLocked    bool       `json:"is_locked"`
	CreatedAt   string     `json:"created_at"`
	Entries     []EntryDTO `json:"entries"`
	TotalDebit  float64    `json:"total_debit"`
	TotalCredit float64    `json:"total_credit"`
	IsBalanced  bool       `json:"is_balanced"`
}

// CreateVerificationRequest posts a new verification. Date is an ISO
// date ("2024-03-15"); the series number is allocated server-side.
type CreateVerificationRequest struct {
	Series      string     `json:"series"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Entries     []EntryDTO `json:"entries"`
	SourceType  string     `json:"source_type,omitempty"`
	SourceID    string     `json:"source_id,omitempty"`
}

// UpdateVerificationRequest patches a verification. Omitted fields are
// left unchanged; omitted entries keep the existing rows.
type UpdateVerificationRequest struct {
	Description *string    `json:"description,omitempty"`
	Date        *string    `json:"date,omitempty"`
	Entries     []EntryDTO `json:"entries,omitempty"`
}

// CorrectionRequest supplies the corrected replacement for a posted
// verification. Date defaults to today, series to the original's.
type CorrectionRequest struct {
	Date        string     `json:"date,omitempty"`
	Description string     `json:"description,omitempty"`
	Entries     []EntryDTO `json:"entries"`
}

// CorrectionResponse returns the full correction triple.
type CorrectionResponse struct {
	Original    VerificationDTO `json:"original"`
	Reversal    VerificationDTO `json:"reversal"`
	Replacement VerificationDTO `json:"replacement"`
}

// NextNumberDTO previews the next free number in a series.
type NextNumberDTO struct {
	Series     string `json:"series"`
	FiscalYear int    `json:"fiscal_year"`
	Next       int    `json:"next"`
}

// PeriodLockDTO reports the lock state of a month.
type PeriodLockDTO struct {
	Year   int  `json:"year"`
	Month  int  `json:"month"`
	Locked bool `json:"locked"`
}

// ClosingResponse returns the result of a year-end close.
type ClosingResponse struct {
	FiscalYear    int               `json:"fiscal_year"`
	Result        float64           `json:"result"`
	Verifications []VerificationDTO `json:"verifications"`
}

// =============================================================================
// VAT TYPES
// =============================================================================

// VatReportDTO is a computed VAT declaration for one quarter.
type VatReportDTO struct {
	Period  string `json:"period"`
	DueDate string `json:"due_date"`
	Status  string `json:"status"`

	Ruta05 float64 `json:"ruta05"`
	Ruta06 float64 `json:"ruta06"`
	Ruta07 float64 `json:"ruta07"`
	Ruta08 float64 `json:"ruta08"`
	Ruta10 float64 `json:"ruta10"`
	Ruta11 float64 `json:"ruta11"`
	Ruta12 float64 `json:"ruta12"`
	Ruta20 float64 `json:"ruta20"`
	Ruta21 float64 `json:"ruta21"`
	Ruta22 float64 `json:"ruta22"`
	Ruta23 float64 `json:"ruta23"`
	Ruta24 float64 `json:"ruta24"`
	Ruta30 float64 `json:"ruta30"`
	Ruta31 float64 `json:"ruta31"`
	Ruta32 float64 `json:"ruta32"`
	Ruta35 float64 `json:"ruta35"`
	Ruta36 float64 `json:"ruta36"`
	Ruta37 float64 `json:"ruta37"`
	Ruta38 float64 `json:"ruta38"`
	Ruta39 float64 `json:"ruta39"`
	Ruta40 float64 `json:"ruta40"`
	Ruta41 float64 `json:"ruta41"`
	Ruta42 float64 `json:"ruta42"`
	Ruta48 float64 `json:"ruta48"`
	Ruta49 float64 `json:"ruta49"`
	Ruta50 float64 `json:"ruta50"`
	Ruta60 float64 `json:"ruta60"`
	Ruta61 float64 `json:"ruta61"`
	Ruta62 float64 `json:"ruta62"`

	SalesVat float64 `json:"sales_vat"`
	InputVat float64 `json:"input_vat"`
	NetVat   float64 `json:"net_vat"`
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// AuditEntryDTO represents one audit trail record.
type AuditEntryDTO struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	EntityName string            `json:"entity_name,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEntries(dtos []EntryDTO) []bookkeeping.Entry {
	if dtos == nil {
		return nil
	}
	entries := make([]bookkeeping.Entry, len(dtos))
	for i, d := range dtos {
		entries[i] = bookkeeping.Entry{
			Account:     d.Account,
			AccountName: d.AccountName,
			Debit:       decimal.NewFromFloat(d.Debit),
			Credit:      decimal.NewFromFloat(d.Credit),
			Description: d.Description,
		}
	}
	return entries
}

func toEntryDTOs(entries []bookkeeping.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		debit, _ := e.Debit.Float64()
		credit, _ := e.Credit.Float64()
		dtos[i] = EntryDTO{
			Account:     e.Account,
			AccountName: e.AccountName,
			Debit:       debit,
			Credit:      credit,
			Description: e.Description,
		}
	}
	return dtos
}

func toVerificationDTO(v *bookkeeping.Verification) VerificationDTO {
	totalDebit, _ := v.TotalDebit().Float64()
	totalCredit, _ := v.TotalCredit().Float64()
	return VerificationDTO{
		ID:          v.ID,
		Series:      v.Series,
		Number:      v.Number,
		Date:        v.Date.Format(dateLayout),
		Description: v.Description,
		FiscalYear:  v.FiscalYear,
		SourceType:  v.SourceType,
		SourceID:    v.SourceID,
		IsLocked:    v.IsLocked,
		CreatedAt:   v.CreatedAt.Format(time.RFC3339),
		Entries:     toEntryDTOs(v.Entries),
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		IsBalanced:  v.IsBalanced(),
	}
}

func toVerificationDTOs(vs []bookkeeping.Verification) []VerificationDTO {
	dtos := make([]VerificationDTO, len(vs))
	for i := range vs {
		dtos[i] = toVerificationDTO(&vs[i])
	}
	return dtos
}

func toVatReportDTO(r *vat.Report, status vat.Status) VatReportDTO {
	f := func(d decimal.Decimal) float64 {
		v, _ := d.Float64()
		return v
	}
	return VatReportDTO{
		Period:  r.Period,
		DueDate: r.DueDate.Format(dateLayout),
		Status:  string(status),

		Ruta05: f(r.Ruta05), Ruta06: f(r.Ruta06), Ruta07: f(r.Ruta07), Ruta08: f(r.Ruta08),
		Ruta10: f(r.Ruta10), Ruta11: f(r.Ruta11), Ruta12: f(r.Ruta12),
		Ruta20: f(r.Ruta20), Ruta21: f(r.Ruta21), Ruta22: f(r.Ruta22),
		Ruta23: f(r.Ruta23), Ruta24: f(r.Ruta24),
		Ruta30: f(r.Ruta30), Ruta31: f(r.Ruta31), Ruta32: f(r.Ruta32),
		Ruta35: f(r.Ruta35), Ruta36: f(r.Ruta36), Ruta37: f(r.Ruta37),
		Ruta38: f(r.Ruta38), Ruta39: f(r.Ruta39), Ruta40: f(r.Ruta40),
		Ruta41: f(r.Ruta41), Ruta42: f(r.Ruta42),
		Ruta48: f(r.Ruta48), Ruta49: f(r.Ruta49),
		Ruta50: f(r.Ruta50), Ruta60: f(r.Ruta60), Ruta61: f(r.Ruta61), Ruta62: f(r.Ruta62),

		SalesVat: f(r.SalesVat), InputVat: f(r.InputVat), NetVat: f(r.NetVat),
	}
}

func toAuditEntryDTOs(entries []bookkeeping.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:         e.ID,
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			EntityName: e.EntityName,
			Metadata:   e.Metadata,
			CreatedAt:  e.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
