package bookkeeping_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjorda/ledger-engine/bookkeeping"
)

func TestCorrectionEngine_Correct(t *testing.T) {
	// GIVEN: A posted sale booked with the wrong VAT account
	// WHEN: It is corrected
	// THEN: A reversal netting the original to zero and a replacement are
	//       booked; the original stays in the ledger untouched

	svc, _ := newTestService(t)
	engine := bookkeeping.NewCorrectionEngine(svc)
	ctx := context.Background()

	original, err := svc.Create(ctx, salesDraft("A", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	corrected := bookkeeping.Draft{
		Date: time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Entries: []bookkeeping.Entry{
			{Account: "1930", Debit: decimal.NewFromInt(1250)},
			{Account: "3001", Credit: decimal.NewFromInt(1000)},
			{Account: "2620", Credit: decimal.NewFromInt(250)},
		},
	}

	result, err := engine.Correct(ctx, original.ID, corrected)
	require.NoError(t, err)

	// Reversal swaps every debit and credit of the original.
	rev := result.Reversal
	require.Len(t, rev.Entries, 3)
	assert.True(t, rev.Entries[0].Credit.Equal(decimal.NewFromInt(1250)))
	assert.True(t, rev.Entries[1].Debit.Equal(decimal.NewFromInt(1000)))
	assert.True(t, rev.Entries[2].Debit.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "Reversal of A1", rev.Description)
	assert.Equal(t, bookkeeping.SourceCorrection, rev.SourceType)
	assert.Equal(t, original.ID, rev.SourceID)

	// Replacement carries the intended entries and a default description.
	repl := result.Replacement
	assert.Equal(t, "Correction of A1", repl.Description)
	assert.Equal(t, original.ID, repl.SourceID)

	// Both took numbers in the original's series.
	assert.Equal(t, "A", rev.Series)
	assert.Equal(t, 2, rev.Number)
	assert.Equal(t, 3, repl.Number)

	// The original is still there, unchanged.
	reloaded, err := svc.GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TotalDebit().Equal(decimal.NewFromInt(1250)))
	assert.Empty(t, reloaded.SourceType)
}

func TestCorrectionEngine_Correct_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	engine := bookkeeping.NewCorrectionEngine(svc)

	_, err := engine.Correct(context.Background(), "no-such-id", bookkeeping.Draft{
		Entries: []bookkeeping.Entry{
			{Account: "1930", Debit: decimal.NewFromInt(100)},
			{Account: "3001", Credit: decimal.NewFromInt(100)},
		},
	})
	assert.True(t, bookkeeping.IsNotFound(err))
}

func TestCorrectionEngine_Correct_LockedCorrectionMonth_Rejected(t *testing.T) {
	// GIVEN: The original's month is locked after posting
	// WHEN: A correction dated inside that month is attempted
	// THEN: Rejected with ErrPeriodLocked and nothing new is booked

	svc, store := newTestService(t)
	engine := bookkeeping.NewCorrectionEngine(svc)
	ctx := context.Background()

	original, err := svc.Create(ctx, salesDraft("A", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NoError(t, store.LockMonth(ctx, 2024, time.March))

	_, err = engine.Correct(ctx, original.ID, bookkeeping.Draft{
		Date: time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC),
		Entries: []bookkeeping.Entry{
			{Account: "1930", Debit: decimal.NewFromInt(1250)},
			{Account: "3001", Credit: decimal.NewFromInt(1250)},
		},
	})
	assert.True(t, bookkeeping.IsPeriodLocked(err))

	count, err := store.CountInMonth(ctx, 2024, time.March)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCorrectionEngine_Correct_NetsToZero(t *testing.T) {
	// GIVEN: A corrected verification
	// WHEN: Original and reversal balances are summed per account
	// THEN: They cancel exactly

	svc, _ := newTestService(t)
	engine := bookkeeping.NewCorrectionEngine(svc)
	ctx := context.Background()

	original, err := svc.Create(ctx, salesDraft("A", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	result, err := engine.Correct(ctx, original.ID, bookkeeping.Draft{
		Date: time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC),
		Entries: []bookkeeping.Entry{
			{Account: "1930", Debit: decimal.NewFromInt(1250)},
			{Account: "3001", Credit: decimal.NewFromInt(1250)},
		},
	})
	require.NoError(t, err)

	net := make(map[string]decimal.Decimal)
	for _, v := range []*bookkeeping.Verification{result.Original, result.Reversal} {
		for _, e := range v.Entries {
			net[e.Account] = net[e.Account].Add(e.Debit).Sub(e.Credit)
		}
	}
	for account, balance := range net {
		assert.True(t, balance.IsZero(), "account %s nets to %s", account, balance)
	}
}
