/*
closing.go - Year-end account closing

PURPOSE:
  At fiscal year end, every income-statement account is zeroed into a
  single result-transfer account, and the resulting balance is moved to
  the current-year-result equity account:

    revenue accounts (3000-3999), net credit  ┐
                                              ├→ 8999 (result transfer)
    expense accounts (4000-8988), net debit   ┘
    8999 balance → 2099 (current-year result, equity)

  The run is a batch layered on top of Service.Create: it posts at most
  two verifications dated Dec 31, both subject to the normal period lock
  and numbering rules. Running against a year with no income-statement
  activity posts nothing.

BAS RANGES:
  3000-3999  revenue
  4000-8988  expenses and financial items (8989/8999 excluded: the
             result-transfer account must not close into itself)
*/
package bookkeeping

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Default closing accounts per the BAS chart.
const (
	DefaultResultAccount = "8999" // Årets resultat (result transfer)
	DefaultEquityAccount = "2099" // Årets resultat (equity)
	DefaultClosingSeries = "Z"
)

// SourceYearClose marks verifications posted by the closing run. Downstream
// aggregations that read operating activity (the VAT projection in
// particular) must skip these, since they reverse the year's revenue.
const SourceYearClose = "year_close"

// ClosingEngine posts the year-end closing entries.
type ClosingEngine struct {
	svc *Service

	ResultAccount string
	EquityAccount string
	Series        string
}

func NewClosingEngine(svc *Service) *ClosingEngine {
	return &ClosingEngine{
		svc:           svc,
		ResultAccount: DefaultResultAccount,
		EquityAccount: DefaultEquityAccount,
		Series:        DefaultClosingSeries,
	}
}

// ClosingResult summarizes a closing run.
type ClosingResult struct {
	FiscalYear    int
	Result        decimal.Decimal // revenue - expenses; positive = profit
	Verifications []*Verification
}

// CloseYear zeroes all income-statement accounts of the fiscal year into
// the result account, then moves the result into equity. Both postings are
// dated December 31 of the fiscal year.
func (e *ClosingEngine) CloseYear(ctx context.Context, fiscalYear int) (*ClosingResult, error) {
	balances, err := e.incomeStatementBalances(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	result := &ClosingResult{FiscalYear: fiscalYear, Result: decimal.Zero}
	if len(balances) == 0 {
		return result, nil
	}

	closingDate := time.Date(fiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC)

	// One entry per used account, countered on the result account.
	var entries []Entry
	net := decimal.Zero // credit-positive balance landing on the result account
	accounts := sortedAccounts(balances)
	for _, account := range accounts {
		balance := balances[account] // credit-positive net
		if balance.IsZero() {
			continue
		}
		if balance.IsPositive() {
			// Net credit (typically revenue): debit it away.
			entries = append(entries, Entry{Account: account, Debit: balance})
		} else {
			// Net debit (typically expense): credit it away.
			entries = append(entries, Entry{Account: account, Credit: balance.Neg()})
		}
		net = net.Add(balance)
	}
	if len(entries) == 0 {
		return result, nil
	}

	// Counter-entry on the result transfer account.
	if net.IsPositive() {
		entries = append(entries, Entry{Account: e.ResultAccount, Credit: net})
	} else if net.IsNegative() {
		entries = append(entries, Entry{Account: e.ResultAccount, Debit: net.Neg()})
	}

	closing, err := e.svc.Create(ctx, Draft{
		Series:      e.Series,
		Date:        closingDate,
		Description: fmt.Sprintf("Closing entries %d", fiscalYear),
		Entries:     entries,
		SourceType:  SourceYearClose,
		SourceID:    strconv.Itoa(fiscalYear),
	})
	if err != nil {
		return nil, fmt.Errorf("post closing entries: %w", err)
	}
	result.Verifications = append(result.Verifications, closing)
	result.Result = net

	// Move the result into equity.
	if !net.IsZero() {
		var transfer []Entry
		if net.IsPositive() {
			transfer = []Entry{
				{Account: e.ResultAccount, Debit: net},
				{Account: e.EquityAccount, Credit: net},
			}
		} else {
			transfer = []Entry{
				{Account: e.EquityAccount, Debit: net.Neg()},
				{Account: e.ResultAccount, Credit: net.Neg()},
			}
		}
		equity, err := e.svc.Create(ctx, Draft{
			Series:      e.Series,
			Date:        closingDate,
			Description: fmt.Sprintf("Result transfer %d", fiscalYear),
			Entries:     transfer,
			SourceType:  SourceYearClose,
			SourceID:    strconv.Itoa(fiscalYear),
		})
		if err != nil {
			return nil, fmt.Errorf("post result transfer: %w", err)
		}
		result.Verifications = append(result.Verifications, equity)
	}

	e.svc.emitAudit(ctx, AuditYearClosed, result.Verifications[0], map[string]string{
		"result": result.Result.String(),
	})
	return result, nil
}

// incomeStatementBalances computes the credit-positive net balance of every
// revenue and expense account used during the fiscal year, excluding the
// closing series itself so reruns do not double-close.
func (e *ClosingEngine) incomeStatementBalances(ctx context.Context, fiscalYear int) (map[string]decimal.Decimal, error) {
	vs, err := e.svc.List(ctx, Filter{FiscalYear: fiscalYear})
	if err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal)
	for _, v := range vs {
		if v.Series == e.Series {
			continue
		}
		for _, entry := range v.Entries {
			code, err := strconv.Atoi(entry.Account)
			if err != nil {
				continue
			}
			if code < 3000 || code > 8988 {
				continue
			}
			balances[entry.Account] = balances[entry.Account].Add(entry.Credit).Sub(entry.Debit)
		}
	}
	return balances, nil
}

func sortedAccounts(balances map[string]decimal.Decimal) []string {
	accounts := make([]string, 0, len(balances))
	for account := range balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}
