package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.New())
	base := time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)
	// Deterministic, strictly increasing clock so newest-first ordering
	// is unambiguous.
	l.Clock = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return l
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// BALANCE FOLD TESTS
// =============================================================================

func TestLedger_BalanceIsFoldOfEntries(t *testing.T) {
	// GIVEN: Two credits and a debit
	// THEN: Balance is credits minus debits, exact decimal arithmetic

	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "mentor-1", amt("80.00"), "Session earnings", "")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "mentor-1", amt("40.50"), "Session earnings", "")
	require.NoError(t, err)
	_, err = l.Debit(ctx, "mentor-1", amt("30.25"), "Payout hold", "")
	require.NoError(t, err)

	balance, err := l.Balance(ctx, "mentor-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(amt("90.25")), "got %s", balance)
}

func TestLedger_EmptyHistory_ZeroBalance(t *testing.T) {
	l := newTestLedger(t)

	balance, err := l.Balance(context.Background(), "mentor-1")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestLedger_BalancesAreIsolatedPerMentor(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "mentor-1", amt("100"), "Session earnings", "")
	require.NoError(t, err)

	balance, err := l.Balance(ctx, "mentor-2")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

// =============================================================================
// IDEMPOTENCY TESTS
// =============================================================================

func TestLedger_DuplicateTransactionID_Rejected(t *testing.T) {
	// GIVEN: An entry written with a deterministic transaction id
	// WHEN: The same id is written again (a retried request)
	// THEN: The second write fails with ErrDuplicateTransaction and the
	//       balance counts the amount exactly once

	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "mentor-1", amt("50"), "Session earnings", "TXN-EARN-cs-1")
	require.NoError(t, err)

	_, err = l.Credit(ctx, "mentor-1", amt("50"), "Session earnings", "TXN-EARN-cs-1")
	assert.ErrorIs(t, err, ledger.ErrDuplicateTransaction)

	balance, err := l.Balance(ctx, "mentor-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(amt("50")))
}

func TestLedger_EmptyTransactionID_Generated(t *testing.T) {
	l := newTestLedger(t)

	e, err := l.Credit(context.Background(), "mentor-1", amt("10"), "Session earnings", "")
	require.NoError(t, err)
	assert.NotEmpty(t, e.TransactionID)
	assert.Contains(t, e.TransactionID, "TXN-")
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestLedger_NonPositiveAmount_Rejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Credit(ctx, "mentor-1", decimal.Zero, "zero", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Debit(ctx, "mentor-1", amt("-5"), "negative", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_MissingMentorID_Rejected(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Credit(context.Background(), "", amt("10"), "no mentor", "")
	assert.ErrorIs(t, err, ledger.ErrMentorRequired)
}

// =============================================================================
// HISTORY PAGING TESTS
// =============================================================================

func TestLedger_Transactions_NewestFirstWithTotal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := l.Credit(ctx, "mentor-1", amt("10"), fmt.Sprintf("entry %d", i), "")
		require.NoError(t, err)
	}

	entries, total, err := l.Transactions(ctx, "mentor-1", ledger.Page{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, entries, 2)
	assert.Equal(t, "entry 5", entries[0].Description)
	assert.Equal(t, "entry 4", entries[1].Description)

	entries, _, err = l.Transactions(ctx, "mentor-1", ledger.Page{Page: 3, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "entry 1", entries[0].Description)
}

func TestLedger_Transactions_DefaultsApplied(t *testing.T) {
	l := newTestLedger(t)

	// Zero page values normalize to page 1 with the default size.
	entries, total, err := l.Transactions(context.Background(), "mentor-1", ledger.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, entries)
}
