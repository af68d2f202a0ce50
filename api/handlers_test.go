/*
handlers_test.go - HTTP-level tests for the API

Tests run the real router against a real in-memory store, exercising JSON
round-trips, the domain error to status code mapping, and the XML export.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjorda/ledger-engine/api"
	"github.com/fjorda/ledger-engine/bookkeeping"
	"github.com/fjorda/ledger-engine/store/sqlite"
	"github.com/fjorda/ledger-engine/vat"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := bookkeeping.NewService(store, bookkeeping.WithAuditLog(store))

	exporter := vat.NewExporter("ledger-engine-test")
	exporter.Now = func() time.Time {
		return time.Date(2024, time.April, 15, 9, 30, 0, 0, time.UTC)
	}

	h := api.NewHandler(svc, exporter,
		api.WithOrgNumber("556677-8899"),
		api.WithPeriodLocker(store),
		api.WithAuditReader(store),
	)

	srv := httptest.NewServer(api.NewRouter(h, zap.NewNop(), nil))
	t.Cleanup(srv.Close)
	return srv, store
}

func salesBody(series, date string) string {
	return fmt.Sprintf(`{
		"series": %q,
		"date": %q,
		"description": "Cash sale",
		"entries": [
			{"account": "1930", "debit": 1250},
			{"account": "3001", "credit": 1000},
			{"account": "2611", "credit": 250}
		]
	}`, series, date)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, bytes.NewBufferString(body))
	}
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// =============================================================================
// VERIFICATION ENDPOINTS
// =============================================================================

func TestAPI_CreateVerification(t *testing.T) {
	// GIVEN: An empty ledger
	// WHEN: A balanced verification is posted
	// THEN: 201 with allocated number and computed totals

	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	v := decode[api.VerificationDTO](t, resp)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "A", v.Series)
	assert.Equal(t, 1, v.Number)
	assert.Equal(t, 2024, v.FiscalYear)
	assert.Equal(t, "2024-03-15", v.Date)
	assert.InDelta(t, 1250, v.TotalDebit, 0.001)
	assert.True(t, v.IsBalanced)
	assert.Len(t, v.Entries, 3)
}

func TestAPI_CreateVerification_Unbalanced_400(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `{
		"series": "A",
		"date": "2024-03-15",
		"entries": [
			{"account": "1930", "debit": 100},
			{"account": "3001", "credit": 50}
		]
	}`
	resp := postJSON(t, srv.URL+"/api/verifications", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decode[api.ErrorResponse](t, resp)
	assert.NotEmpty(t, errResp.Error)
}

func TestAPI_CreateVerification_BadDate_400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/verifications", salesBody("A", "15/03/2024"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateVerification_LockedMonth_409(t *testing.T) {
	// GIVEN: March 2024 is locked
	// WHEN: A verification dated March is posted
	// THEN: 409 with the period_locked code

	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-05"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	lockResp := do(t, http.MethodPut, srv.URL+"/api/periods/2024/3/locked", "")
	require.Equal(t, http.StatusOK, lockResp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-20"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	errResp := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "period_locked", errResp.Code)
}

func TestAPI_GetVerification_NotFound_404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/verifications/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_UpdateVerification(t *testing.T) {
	srv, _ := newTestServer(t)

	created := decode[api.VerificationDTO](t,
		postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15")))

	resp := do(t, http.MethodPut, srv.URL+"/api/verifications/"+created.ID,
		`{"description": "Cash sale, amended"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decode[api.VerificationDTO](t, resp)
	assert.Equal(t, "Cash sale, amended", updated.Description)
	assert.Equal(t, created.Number, updated.Number)
}

func TestAPI_DeleteVerification_LatestOnly(t *testing.T) {
	// GIVEN: A1 and A2 posted
	// WHEN: A1 is deleted
	// THEN: 400; deleting A2 returns 204

	srv, _ := newTestServer(t)

	v1 := decode[api.VerificationDTO](t,
		postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15")))
	v2 := decode[api.VerificationDTO](t,
		postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-16")))

	resp := do(t, http.MethodDelete, srv.URL+"/api/verifications/"+v1.ID, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/verifications/"+v2.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_ListVerifications_SeriesFilter(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-10"))
	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-11"))
	postJSON(t, srv.URL+"/api/verifications", salesBody("B", "2024-03-12"))

	resp := do(t, http.MethodGet, srv.URL+"/api/verifications?series=A", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	vs := decode[[]api.VerificationDTO](t, resp)
	assert.Len(t, vs, 2)
}

func TestAPI_CorrectVerification(t *testing.T) {
	// GIVEN: A posted verification
	// WHEN: A correction is posted
	// THEN: 201 with original, reversal and replacement

	srv, _ := newTestServer(t)

	original := decode[api.VerificationDTO](t,
		postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15")))

	body := `{
		"date": "2024-03-20",
		"entries": [
			{"account": "1930", "debit": 1250},
			{"account": "3001", "credit": 1000},
			{"account": "2620", "credit": 250}
		]
	}`
	resp := postJSON(t, srv.URL+"/api/verifications/"+original.ID+"/correct", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	result := decode[api.CorrectionResponse](t, resp)
	assert.Equal(t, original.ID, result.Original.ID)
	assert.Equal(t, "Reversal of A1", result.Reversal.Description)
	assert.Equal(t, 2, result.Reversal.Number)
	assert.Equal(t, 3, result.Replacement.Number)
	assert.InDelta(t, 1250, result.Reversal.TotalCredit, 0.001)
}

func TestAPI_VerificationAuditTrail(t *testing.T) {
	srv, _ := newTestServer(t)

	v := decode[api.VerificationDTO](t,
		postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15")))

	resp := do(t, http.MethodGet, srv.URL+"/api/verifications/"+v.ID+"/audit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	trail := decode[[]api.AuditEntryDTO](t, resp)
	require.Len(t, trail, 1)
	assert.Equal(t, "verification_created", trail[0].Action)
	assert.Equal(t, "A1", trail[0].EntityName)
}

// =============================================================================
// SERIES / PERIOD / CLOSING ENDPOINTS
// =============================================================================

func TestAPI_NextNumber(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15"))

	resp := do(t, http.MethodGet, srv.URL+"/api/series/A/next-number?fiscal_year=2024", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	next := decode[api.NextNumberDTO](t, resp)
	assert.Equal(t, "A", next.Series)
	assert.Equal(t, 2024, next.FiscalYear)
	assert.Equal(t, 2, next.Next)
}

func TestAPI_PeriodLockState(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15"))

	resp := do(t, http.MethodGet, srv.URL+"/api/periods/2024/3/locked", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[api.PeriodLockDTO](t, resp)
	assert.False(t, state.Locked)

	do(t, http.MethodPut, srv.URL+"/api/periods/2024/3/locked", "")

	resp = do(t, http.MethodGet, srv.URL+"/api/periods/2024/3/locked", "")
	state = decode[api.PeriodLockDTO](t, resp)
	assert.True(t, state.Locked)
}

func TestAPI_CloseYear(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-03-15"))

	resp := do(t, http.MethodPost, srv.URL+"/api/closing/2024", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	closing := decode[api.ClosingResponse](t, resp)
	assert.Equal(t, 2024, closing.FiscalYear)
	assert.InDelta(t, 1000, closing.Result, 0.001)
	assert.Len(t, closing.Verifications, 2)
}

// =============================================================================
// VAT ENDPOINTS
// =============================================================================

func TestAPI_VatReport(t *testing.T) {
	// GIVEN: A Q1 sale and a Q2 sale
	// WHEN: The Q1 report is requested
	// THEN: Only Q1 contributes

	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-02-10"))
	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-05-10"))

	resp := do(t, http.MethodGet, srv.URL+"/api/vat/reports/Q1-2024", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decode[api.VatReportDTO](t, resp)
	assert.Equal(t, "Q1 2024", report.Period)
	assert.Equal(t, "2024-05-12", report.DueDate)
	assert.InDelta(t, 1000, report.Ruta05, 0.001)
	assert.InDelta(t, 250, report.Ruta10, 0.001)
	assert.InDelta(t, 250, report.NetVat, 0.001)
}

func TestAPI_VatReport_BadPeriod_400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/vat/reports/Q9-2024", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_VatReportXML(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/api/verifications", salesBody("A", "2024-02-10"))

	resp := do(t, http.MethodGet, srv.URL+"/api/vat/reports/Q1-2024/xml", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/xml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "momsdeklaration-Q1-2024.xml")

	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "<SKVDeklaration>")
	assert.Contains(t, out, "<OrgNr>556677-8899</OrgNr>")
	assert.Contains(t, out, "<Ruta05>1000</Ruta05>")
	assert.Contains(t, out, "<Ruta49>250</Ruta49>")
}

// =============================================================================
// OPERATIONAL ENDPOINTS
// =============================================================================

func TestAPI_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
