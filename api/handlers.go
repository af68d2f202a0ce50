/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the bookkeeping core and VAT aggregation via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Verifications:
    GET    /api/verifications              List (filters: series, fiscal_year, from, to)
    POST   /api/verifications              Post a new verification
    GET    /api/verifications/{id}         Get verification
    PUT    /api/verifications/{id}         Patch verification (unlocked months only)
    DELETE /api/verifications/{id}         Delete latest verification of its series
    POST   /api/verifications/{id}/correct Book reversal + replacement
    GET    /api/verifications/{id}/audit   Audit trail for one verification

  Series:
    GET    /api/series/{series}/next-number Preview next free number

  Periods:
    GET    /api/periods/{year}/{month}/locked Lock state of a month
    PUT    /api/periods/{year}/{month}/locked Lock a month

  Closing:
    POST   /api/closing/{year}             Year-end close

  VAT:
    GET    /api/vat/reports/{period}       Computed declaration ("Q1-2024")
    GET    /api/vat/reports/{period}/xml   eSKD XML export

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors (unbalanced, bad input)
  - 404: Verification not found
  - 409: Locked period, exhausted number conflict
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjorda/ledger-engine/bookkeeping"
	"github.com/fjorda/ledger-engine/observability"
	"github.com/fjorda/ledger-engine/vat"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// PeriodLocker locks a month against further postings.
type PeriodLocker interface {
	LockMonth(ctx context.Context, year int, month time.Month) error
}

// AuditReader reads the audit trail of an entity.
type AuditReader interface {
	ListAudit(ctx context.Context, entityType, entityID string) ([]bookkeeping.AuditEntry, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc           *bookkeeping.Service
	corrections   *bookkeeping.CorrectionEngine
	closing       *bookkeeping.ClosingEngine
	locker        PeriodLocker
	audit         AuditReader
	exporter      *vat.Exporter
	logger        *zap.Logger
	metrics       *observability.Metrics
	orgNumber     string
	defaultSeries string

	now func() time.Time
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger attaches a structured logger.
func WithHandlerLogger(log *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = log }
}

// WithHandlerMetrics attaches Prometheus counters.
func WithHandlerMetrics(m *observability.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithOrgNumber sets the organisation number stamped into XML exports.
func WithOrgNumber(orgNumber string) HandlerOption {
	return func(h *Handler) { h.orgNumber = orgNumber }
}

// WithDefaultSeries sets the series used when a posting names none.
func WithDefaultSeries(series string) HandlerOption {
	return func(h *Handler) { h.defaultSeries = series }
}

// WithPeriodLocker enables the month-locking endpoint.
func WithPeriodLocker(l PeriodLocker) HandlerOption {
	return func(h *Handler) { h.locker = l }
}

// WithAuditReader enables the audit trail endpoint.
func WithAuditReader(a AuditReader) HandlerOption {
	return func(h *Handler) { h.audit = a }
}

// NewHandler creates a handler with all engines wired.
func NewHandler(svc *bookkeeping.Service, exporter *vat.Exporter, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:         svc,
		corrections: bookkeeping.NewCorrectionEngine(svc),
		closing:     bookkeeping.NewClosingEngine(svc),
		exporter:    exporter,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// =============================================================================
// VERIFICATION HANDLERS
// =============================================================================

// CreateVerification handles POST /api/verifications
func (h *Handler) CreateVerification(w http.ResponseWriter, r *http.Request) {
	var req CreateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", err)
		return
	}

	if req.Series == "" {
		req.Series = h.defaultSeries
	}

	v, err := h.svc.Create(r.Context(), bookkeeping.Draft{
		Series:      req.Series,
		Date:        date,
		Description: req.Description,
		Entries:     toEntries(req.Entries),
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
	})
	if err != nil {
		h.writeDomainError(w, "create verification", err)
		return
	}

	writeJSON(w, http.StatusCreated, toVerificationDTO(v))
}

// ListVerifications handles GET /api/verifications
func (h *Handler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	var f bookkeeping.Filter

	q := r.URL.Query()
	f.Series = q.Get("series")
	if raw := q.Get("fiscal_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fiscal_year", err)
			return
		}
		f.FiscalYear = year
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date", err)
			return
		}
		f.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date", err)
			return
		}
		f.To = &t
	}

	vs, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, "list verifications", err)
		return
	}

	writeJSON(w, http.StatusOK, toVerificationDTOs(vs))
}

// GetVerification handles GET /api/verifications/{id}
func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	v, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "get verification", err)
		return
	}

	writeJSON(w, http.StatusOK, toVerificationDTO(v))
}

// UpdateVerification handles PUT /api/verifications/{id}
func (h *Handler) UpdateVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var patch bookkeeping.Patch
	patch.Description = req.Description
	if req.Date != nil {
		date, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", err)
			return
		}
		patch.Date = &date
	}
	if req.Entries != nil {
		patch.Entries = toEntries(req.Entries)
	}

	v, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, "update verification", err)
		return
	}

	writeJSON(w, http.StatusOK, toVerificationDTO(v))
}

// DeleteVerification handles DELETE /api/verifications/{id}
func (h *Handler) DeleteVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "delete verification", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CorrectVerification handles POST /api/verifications/{id}/correct
func (h *Handler) CorrectVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	corrected := bookkeeping.Draft{
		Description: req.Description,
		Entries:     toEntries(req.Entries),
	}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", err)
			return
		}
		corrected.Date = date
	}

	result, err := h.corrections.Correct(r.Context(), id, corrected)
	if err != nil {
		h.writeDomainError(w, "correct verification", err)
		return
	}

	writeJSON(w, http.StatusCreated, CorrectionResponse{
		Original:    toVerificationDTO(result.Original),
		Reversal:    toVerificationDTO(result.Reversal),
		Replacement: toVerificationDTO(result.Replacement),
	})
}

// GetVerificationAudit handles GET /api/verifications/{id}/audit
func (h *Handler) GetVerificationAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit trail not enabled", nil)
		return
	}

	id := chi.URLParam(r, "id")
	entries, err := h.audit.ListAudit(r.Context(), "verification", id)
	if err != nil {
		h.writeDomainError(w, "list audit trail", err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// =============================================================================
// SERIES / PERIOD HANDLERS
// =============================================================================

// GetNextNumber handles GET /api/series/{series}/next-number
//
// Returns a preview only. The number is allocated for real at create time,
// so two concurrent clients may see the same preview.
func (h *Handler) GetNextNumber(w http.ResponseWriter, r *http.Request) {
	series := chi.URLParam(r, "series")

	fiscalYear := h.now().Year()
	if raw := r.URL.Query().Get("fiscal_year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fiscal_year", err)
			return
		}
		fiscalYear = year
	}

	next, err := h.svc.NextNumber(r.Context(), series, fiscalYear)
	if err != nil {
		h.writeDomainError(w, "next number", err)
		return
	}

	writeJSON(w, http.StatusOK, NextNumberDTO{Series: series, FiscalYear: fiscalYear, Next: next})
}

// GetPeriodLock handles GET /api/periods/{year}/{month}/locked
func (h *Handler) GetPeriodLock(w http.ResponseWriter, r *http.Request) {
	year, month, ok := parsePeriodParams(w, r)
	if !ok {
		return
	}

	locked, err := h.svc.IsPeriodLocked(r.Context(), time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		h.writeDomainError(w, "period lock state", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodLockDTO{Year: year, Month: int(month), Locked: locked})
}

// LockPeriod handles PUT /api/periods/{year}/{month}/locked
func (h *Handler) LockPeriod(w http.ResponseWriter, r *http.Request) {
	if h.locker == nil {
		writeError(w, http.StatusNotFound, "period locking not enabled", nil)
		return
	}

	year, month, ok := parsePeriodParams(w, r)
	if !ok {
		return
	}

	if err := h.locker.LockMonth(r.Context(), year, month); err != nil {
		h.writeDomainError(w, "lock period", err)
		return
	}

	h.logger.Info("period locked", zap.Int("year", year), zap.Int("month", int(month)))
	writeJSON(w, http.StatusOK, PeriodLockDTO{Year: year, Month: int(month), Locked: true})
}

// CloseYear handles POST /api/closing/{year}
func (h *Handler) CloseYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}

	result, err := h.closing.CloseYear(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, "close year", err)
		return
	}

	resultAmount, _ := result.Result.Float64()
	dtos := make([]VerificationDTO, len(result.Verifications))
	for i, v := range result.Verifications {
		dtos[i] = toVerificationDTO(v)
	}

	h.logger.Info("fiscal year closed",
		zap.Int("fiscal_year", year),
		zap.Float64("result", resultAmount))

	writeJSON(w, http.StatusCreated, ClosingResponse{
		FiscalYear:    year,
		Result:        resultAmount,
		Verifications: dtos,
	})
}

// =============================================================================
// VAT HANDLERS
// =============================================================================

// GetVatReport handles GET /api/vat/reports/{period}
func (h *Handler) GetVatReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.computeVatReport(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toVatReportDTO(report, report.StatusAt(h.now())))
}

// GetVatReportXML handles GET /api/vat/reports/{period}/xml
func (h *Handler) GetVatReportXML(w http.ResponseWriter, r *http.Request) {
	report, ok := h.computeVatReport(w, r)
	if !ok {
		return
	}

	data, err := h.exporter.WriteXML(report, h.orgNumber)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "xml export failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "momsdeklaration-"+chi.URLParam(r, "period")+".xml"))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// computeVatReport aggregates the declaration for the period in the URL.
func (h *Handler) computeVatReport(w http.ResponseWriter, r *http.Request) (*vat.Report, bool) {
	period := chi.URLParam(r, "period")

	quarter, year, err := vat.ParsePeriod(period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period, expected Q1-2024", err)
		return nil, false
	}

	from, to := vat.PeriodWindow(quarter, year)
	vs, err := h.svc.List(r.Context(), bookkeeping.Filter{From: &from, To: &to})
	if err != nil {
		h.writeDomainError(w, "list verifications for period", err)
		return nil, false
	}

	report, err := vat.CalculateFromVerifications(vs, period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "vat aggregation failed", err)
		return nil, false
	}

	h.metrics.IncrVatReportComputed()
	return report, true
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePeriodParams(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month", err)
		return 0, 0, false
	}
	return year, time.Month(month), true
}

// writeDomainError maps domain errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, operation string, err error) {
	switch {
	case bookkeeping.IsValidation(err):
		writeError(w, http.StatusBadRequest, operation+" rejected", err)
	case bookkeeping.IsNotFound(err):
		writeError(w, http.StatusNotFound, "verification not found", err)
	case bookkeeping.IsPeriodLocked(err):
		h.metrics.IncrLockRejection(operation)
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "accounting period is locked",
			Code:    "period_locked",
			Details: err.Error(),
		})
	case bookkeeping.IsConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "series number conflict, retry the request",
			Code:    "number_conflict",
			Details: err.Error(),
		})
	default:
		h.logger.Error("internal error", zap.String("operation", operation), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
