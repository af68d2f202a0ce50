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

func TestClosingEngine_CloseYear_Profit(t *testing.T) {
	// GIVEN: 2024 holds 1000 revenue on 3001 and 400 expenses on 4001
	// WHEN: The year is closed
	// THEN: Two Z-series verifications; income accounts zeroed into 8999,
	//       600 profit moved to equity 2099

	svc, _ := newTestService(t)
	engine := bookkeeping.NewClosingEngine(svc)
	ctx := context.Background()

	_, err := svc.Create(ctx, salesDraft("A", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = svc.Create(ctx, bookkeeping.Draft{
		Series:      "A",
		Date:        time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		Description: "Office supplies",
		Entries: []bookkeeping.Entry{
			{Account: "4001", Debit: decimal.NewFromInt(400)},
			{Account: "1930", Credit: decimal.NewFromInt(400)},
		},
	})
	require.NoError(t, err)

	result, err := engine.CloseYear(ctx, 2024)
	require.NoError(t, err)

	assert.True(t, result.Result.Equal(decimal.NewFromInt(600)), "result is %s", result.Result)
	require.Len(t, result.Verifications, 2)

	closing := result.Verifications[0]
	assert.Equal(t, "Z", closing.Series)
	assert.Equal(t, 1, closing.Number)
	assert.Equal(t, time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC), closing.Date)
	assert.True(t, closing.IsBalanced())

	// 3001 had 1000 net credit: debited away. 4001 had 400 net debit:
	// credited away. Counter on 8999.
	byAccount := make(map[string]bookkeeping.Entry)
	for _, e := range closing.Entries {
		byAccount[e.Account] = e
	}
	assert.True(t, byAccount["3001"].Debit.Equal(decimal.NewFromInt(1000)))
	assert.True(t, byAccount["4001"].Credit.Equal(decimal.NewFromInt(400)))
	assert.True(t, byAccount["8999"].Credit.Equal(decimal.NewFromInt(600)))

	transfer := result.Verifications[1]
	assert.True(t, transfer.IsBalanced())
	byAccount = make(map[string]bookkeeping.Entry)
	for _, e := range transfer.Entries {
		byAccount[e.Account] = e
	}
	assert.True(t, byAccount["8999"].Debit.Equal(decimal.NewFromInt(600)))
	assert.True(t, byAccount["2099"].Credit.Equal(decimal.NewFromInt(600)))
}

func TestClosingEngine_CloseYear_Loss(t *testing.T) {
	// GIVEN: Expenses exceed revenue by 200
	// WHEN: The year is closed
	// THEN: Result is -200 and equity is debited

	svc, _ := newTestService(t)
	engine := bookkeeping.NewClosingEngine(svc)
	ctx := context.Background()

	_, err := svc.Create(ctx, bookkeeping.Draft{
		Series: "A",
		Date:   time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC),
		Entries: []bookkeeping.Entry{
			{Account: "4001", Debit: decimal.NewFromInt(200)},
			{Account: "1930", Credit: decimal.NewFromInt(200)},
		},
	})
	require.NoError(t, err)

	result, err := engine.CloseYear(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, result.Result.Equal(decimal.NewFromInt(-200)))
	require.Len(t, result.Verifications, 2)

	transfer := result.Verifications[1]
	byAccount := make(map[string]bookkeeping.Entry)
	for _, e := range transfer.Entries {
		byAccount[e.Account] = e
	}
	assert.True(t, byAccount["2099"].Debit.Equal(decimal.NewFromInt(200)))
	assert.True(t, byAccount["8999"].Credit.Equal(decimal.NewFromInt(200)))
}

func TestClosingEngine_CloseYear_EmptyYear(t *testing.T) {
	// GIVEN: No income-statement activity in 2024
	// WHEN: The year is closed
	// THEN: Nothing is posted

	svc, _ := newTestService(t)
	engine := bookkeeping.NewClosingEngine(svc)

	result, err := engine.CloseYear(context.Background(), 2024)
	require.NoError(t, err)
	assert.True(t, result.Result.IsZero())
	assert.Empty(t, result.Verifications)
}

func TestClosingEngine_CloseYear_BalanceAccountsUntouched(t *testing.T) {
	// GIVEN: A verification touching only balance accounts (1930, 2611)
	// WHEN: The year is closed
	// THEN: Nothing is posted; balance accounts never close into 8999

	svc, _ := newTestService(t)
	engine := bookkeeping.NewClosingEngine(svc)
	ctx := context.Background()

	_, err := svc.Create(ctx, bookkeeping.Draft{
		Series: "A",
		Date:   time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC),
		Entries: []bookkeeping.Entry{
			{Account: "1930", Debit: decimal.NewFromInt(250)},
			{Account: "2611", Credit: decimal.NewFromInt(250)},
		},
	})
	require.NoError(t, err)

	result, err := engine.CloseYear(ctx, 2024)
	require.NoError(t, err)
	assert.Empty(t, result.Verifications)
}

func TestClosingEngine_CloseYear_RerunDoesNotDoubleClose(t *testing.T) {
	// GIVEN: 2024 was already closed
	// WHEN: CloseYear runs again
	// THEN: The Z series is excluded from aggregation, so the income
	//       accounts are already flat and the rerun nets to zero

	svc, _ := newTestService(t)
	engine := bookkeeping.NewClosingEngine(svc)
	ctx := context.Background()

	_, err := svc.Create(ctx, salesDraft("A", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	first, err := engine.CloseYear(ctx, 2024)
	require.NoError(t, err)
	require.Len(t, first.Verifications, 2)

	// The A-series income postings are still there, so the rerun re-closes
	// the same balances. Bookkeeping-wise a rerun only makes sense after a
	// correction, but it must never read its own Z postings.
	second, err := engine.CloseYear(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, second.Result.Equal(first.Result))
}
