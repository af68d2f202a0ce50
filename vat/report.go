/*
Package vat derives the statutory Swedish VAT return from the ledger.

PURPOSE:
  A VAT report ("momsdeklaration") is a recomputable projection over
  committed verifications for one quarter. It is never a stored entity:
  calling the aggregator twice with identical inputs yields bit-identical
  output. The report's ~30 numbered boxes ("rutor") follow the tax
  authority's form layout.

KEY CONCEPTS IN THIS FILE (report.go):
  - Report: the box structure plus derived aggregates
  - Recalculate: the shared final aggregation every entry point funnels into
  - Deadline / StatusAt: filing deadline per quarter and read-time status
  - ParsePeriod: "Q1 2024" (or "Q1-2024") → quarter + year

SEE ALSO:
  - aggregator.go: The three calculation entry points
  - eskd.go: Fixed-schema XML export for filing
*/
package vat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status of a report relative to its filing deadline. Never persisted as a
// transition; computed at read time unless externally marked submitted.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOverdue   Status = "overdue"
	StatusSubmitted Status = "submitted"
)

// Report is one quarter's VAT return. Box numbering follows the statutory
// form: sales bases (05-08), output VAT (10-12), reverse-charge purchase
// bases (20-24), output VAT on reverse charge (30-32), exempt sales
// (35-42), input VAT (48), net result (49), import (50, 60-62).
type Report struct {
	Period    string // "Q1 2024"
	Quarter   int
	Year      int
	DueDate   time.Time
	Submitted bool

	// Taxable sales bases
	Ruta05 decimal.Decimal // 25% rate
	Ruta06 decimal.Decimal // 12% rate
	Ruta07 decimal.Decimal // 6% rate
	Ruta08 decimal.Decimal

	// Output VAT
	Ruta10 decimal.Decimal // 25%
	Ruta11 decimal.Decimal // 12%
	Ruta12 decimal.Decimal // 6%

	// Reverse-charge purchase bases
	Ruta20 decimal.Decimal // EU goods
	Ruta21 decimal.Decimal // EU services
	Ruta22 decimal.Decimal // non-EU services
	Ruta23 decimal.Decimal
	Ruta24 decimal.Decimal

	// Output VAT on reverse-charge purchases
	Ruta30 decimal.Decimal
	Ruta31 decimal.Decimal
	Ruta32 decimal.Decimal

	// Exempt and other sales
	Ruta35 decimal.Decimal
	Ruta36 decimal.Decimal
	Ruta37 decimal.Decimal
	Ruta38 decimal.Decimal
	Ruta39 decimal.Decimal
	Ruta40 decimal.Decimal
	Ruta41 decimal.Decimal
	Ruta42 decimal.Decimal

	// Deductible input VAT
	Ruta48 decimal.Decimal

	// Net result (= NetVat)
	Ruta49 decimal.Decimal

	// Import
	Ruta50 decimal.Decimal
	Ruta60 decimal.Decimal
	Ruta61 decimal.Decimal
	Ruta62 decimal.Decimal

	// Derived aggregates, filled by Recalculate.
	SalesVat decimal.Decimal
	InputVat decimal.Decimal
	NetVat   decimal.Decimal
}

// NewReport creates an empty report for a period string.
func NewReport(period string) (*Report, error) {
	quarter, year, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	return &Report{
		Period:  fmt.Sprintf("Q%d %d", quarter, year),
		Quarter: quarter,
		Year:    year,
		DueDate: Deadline(quarter, year),
	}, nil
}

// Recalculate derives the aggregate fields from the boxes. Every
// calculation entry point funnels into this after its mapping pass.
func (r *Report) Recalculate() {
	r.SalesVat = r.Ruta10.Add(r.Ruta11).Add(r.Ruta12).
		Add(r.Ruta30).Add(r.Ruta31).Add(r.Ruta32).
		Add(r.Ruta60).Add(r.Ruta61).Add(r.Ruta62)
	r.InputVat = r.Ruta48
	r.NetVat = r.SalesVat.Sub(r.InputVat)
	r.Ruta49 = r.NetVat
}

// StatusAt computes the report status at the given instant.
func (r *Report) StatusAt(now time.Time) Status {
	if r.Submitted {
		return StatusSubmitted
	}
	if now.After(r.DueDate) {
		return StatusOverdue
	}
	return StatusUpcoming
}

// =============================================================================
// PERIODS AND DEADLINES
// =============================================================================

// Deadline returns the statutory filing deadline for a quarter. Q4 is due
// in February of the following year. Quarters outside 1-4 return the zero
// time; ParsePeriod validates raw period strings before they get here.
func Deadline(quarter, year int) time.Time {
	switch quarter {
	case 1:
		return time.Date(year, time.May, 12, 0, 0, 0, 0, time.UTC)
	case 2:
		return time.Date(year, time.August, 17, 0, 0, 0, 0, time.UTC)
	case 3:
		return time.Date(year, time.November, 12, 0, 0, 0, 0, time.UTC)
	case 4:
		return time.Date(year+1, time.February, 12, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// ParsePeriod parses "Q1 2024" (also accepting "Q1-2024" and lowercase).
func ParsePeriod(period string) (quarter, year int, err error) {
	s := strings.ToUpper(strings.TrimSpace(period))
	s = strings.ReplaceAll(s, "-", " ")
	parts := strings.Fields(s)
	if len(parts) != 2 || len(parts[0]) != 2 || parts[0][0] != 'Q' {
		return 0, 0, fmt.Errorf("invalid period %q: want \"Qn YYYY\"", period)
	}
	quarter, err = strconv.Atoi(parts[0][1:])
	if err != nil || quarter < 1 || quarter > 4 {
		return 0, 0, fmt.Errorf("invalid quarter in period %q", period)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil || year < 1900 {
		return 0, 0, fmt.Errorf("invalid year in period %q", period)
	}
	return quarter, year, nil
}

// PeriodWindow returns the first and last day of a quarter, inclusive.
func PeriodWindow(quarter, year int) (from, to time.Time) {
	from = time.Date(year, time.Month(3*(quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
	to = from.AddDate(0, 3, 0).AddDate(0, 0, -1)
	return from, to
}
