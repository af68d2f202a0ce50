/*
aggregator.go - Pure mapping from ledger data to VAT report boxes

PURPOSE:
  Three entry points, one shared derivation:

    CalculateFromVerifications  committed journal postings (BAS accounts)
    CalculateFromTransactions   bank-style transactions with a stated rate
    CalculateFromDocuments      customer/supplier invoices and receipts

  The verification path maps BAS account code ranges to boxes; the two
  alternate paths map the stated VAT rate directly and back-compute the
  sales base from VAT / rate. All three funnel into Report.Recalculate so
  the aggregation logic is never duplicated per source type.

DETERMINISM:
  No side effects, no clock reads. Identical inputs yield bit-identical
  reports.

RECONCILIATION FALLBACK:
  Not every bookkeeping practice posts dedicated base accounts for the
  reduced rates. When a VAT box is populated but its base box is zero, the
  base is inferred from the VAT amount and the statutory rate
  (Ruta06 = Ruta11 / 0.12, Ruta07 = Ruta12 / 0.06, rounded).
*/
package vat

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fjorda/ledger-engine/bookkeeping"
)

var (
	rate25 = decimal.NewFromFloat(0.25)
	rate12 = decimal.NewFromFloat(0.12)
	rate06 = decimal.NewFromFloat(0.06)
)

// =============================================================================
// FROM VERIFICATIONS - BAS account range mapping
// =============================================================================

// CalculateFromVerifications derives a report from committed verifications
// for the given period ("Qn YYYY"). Only entries on verifications dated
// inside the quarter window contribute. Year-end closing postings are
// skipped: they are dated Dec 31 inside the Q4 window and would otherwise
// cancel the quarter's sales bases.
func CalculateFromVerifications(vs []bookkeeping.Verification, period string) (*Report, error) {
	r, err := NewReport(period)
	if err != nil {
		return nil, err
	}
	from, to := PeriodWindow(r.Quarter, r.Year)

	for _, v := range vs {
		if !inWindow(v.Date, from, to) {
			continue
		}
		if v.SourceType == bookkeeping.SourceYearClose {
			continue
		}
		for _, e := range v.Entries {
			applyEntry(r, e)
		}
	}

	applyBaseFallback(r)
	r.Recalculate()
	return r, nil
}

// applyEntry maps one verification line to its box by BAS account range.
func applyEntry(r *Report, e bookkeeping.Entry) {
	code, err := strconv.Atoi(e.Account)
	if err != nil {
		return // non-numeric account codes carry no VAT meaning
	}

	switch {
	case code >= 2610 && code <= 2619:
		r.Ruta10 = r.Ruta10.Add(e.Credit) // output VAT 25%
	case code >= 2620 && code <= 2629:
		r.Ruta11 = r.Ruta11.Add(e.Credit) // output VAT 12%
	case code >= 2630 && code <= 2639:
		r.Ruta12 = r.Ruta12.Add(e.Credit) // output VAT 6%
	case code >= 2640 && code <= 2649:
		r.Ruta48 = r.Ruta48.Add(e.Debit) // deductible input VAT
	case code >= 3000 && code <= 3399:
		r.Ruta05 = r.Ruta05.Add(e.Credit).Sub(e.Debit) // sales base 25%
	case code >= 3400 && code <= 3999:
		r.Ruta42 = r.Ruta42.Add(e.Credit).Sub(e.Debit) // other/exempt sales
	case code == 4515:
		r.Ruta20 = r.Ruta20.Add(e.Debit).Sub(e.Credit) // EU goods, reverse charge
	case code == 4535:
		r.Ruta21 = r.Ruta21.Add(e.Debit).Sub(e.Credit) // EU services, reverse charge
	case code == 4531:
		r.Ruta22 = r.Ruta22.Add(e.Debit).Sub(e.Credit) // non-EU services, reverse charge
	}
}

// applyBaseFallback back-computes reduced-rate sales bases from their VAT
// boxes when no dedicated base account was booked.
func applyBaseFallback(r *Report) {
	if r.Ruta06.IsZero() && !r.Ruta11.IsZero() {
		r.Ruta06 = r.Ruta11.Div(rate12).Round(0)
	}
	if r.Ruta07.IsZero() && !r.Ruta12.IsZero() {
		r.Ruta07 = r.Ruta12.Div(rate06).Round(0)
	}
}

// =============================================================================
// FROM TRANSACTIONS / DOCUMENTS - Direct rate mapping
// =============================================================================

// TransactionKind separates the VAT direction of a raw transaction.
type TransactionKind string

const (
	KindSale     TransactionKind = "sale"
	KindPurchase TransactionKind = "purchase"
)

// Transaction is a raw business transaction with a stated VAT rate, used
// when no verification has been booked yet.
type Transaction struct {
	Date      time.Time
	Kind      TransactionKind
	VatRate   int // 25, 12 or 6
	VatAmount decimal.Decimal
}

// Document is a source document (customer/supplier invoice, receipt).
type Document struct {
	Date      time.Time
	Kind      TransactionKind // customer invoices sell, supplier invoices and receipts purchase
	VatRate   int
	VatAmount decimal.Decimal
}

// CalculateFromTransactions derives a report directly from raw
// transactions: VAT amount by stated rate into the matching box, sales
// base back-computed from VAT / rate.
func CalculateFromTransactions(txs []Transaction, period string) (*Report, error) {
	r, err := NewReport(period)
	if err != nil {
		return nil, err
	}
	from, to := PeriodWindow(r.Quarter, r.Year)

	for _, tx := range txs {
		if !inWindow(tx.Date, from, to) {
			continue
		}
		applyRated(r, tx.Kind, tx.VatRate, tx.VatAmount)
	}

	r.Recalculate()
	return r, nil
}

// CalculateFromDocuments derives a report from source documents. Shares
// the rate mapping and final aggregation with the transaction path.
func CalculateFromDocuments(docs []Document, period string) (*Report, error) {
	r, err := NewReport(period)
	if err != nil {
		return nil, err
	}
	from, to := PeriodWindow(r.Quarter, r.Year)

	for _, doc := range docs {
		if !inWindow(doc.Date, from, to) {
			continue
		}
		applyRated(r, doc.Kind, doc.VatRate, doc.VatAmount)
	}

	r.Recalculate()
	return r, nil
}

// applyRated maps a stated-rate VAT amount to its output/input box and
// back-computes the sales base. Shared by the transaction and document
// entry points.
func applyRated(r *Report, kind TransactionKind, rate int, vatAmount decimal.Decimal) {
	if kind == KindPurchase {
		r.Ruta48 = r.Ruta48.Add(vatAmount)
		return
	}
	switch rate {
	case 25:
		r.Ruta10 = r.Ruta10.Add(vatAmount)
		r.Ruta05 = r.Ruta05.Add(vatAmount.Div(rate25).Round(0))
	case 12:
		r.Ruta11 = r.Ruta11.Add(vatAmount)
		r.Ruta06 = r.Ruta06.Add(vatAmount.Div(rate12).Round(0))
	case 6:
		r.Ruta12 = r.Ruta12.Add(vatAmount)
		r.Ruta07 = r.Ruta07.Add(vatAmount.Div(rate06).Round(0))
	}
}

func inWindow(date, from, to time.Time) bool {
	return !date.Before(from) && !date.After(to)
}
