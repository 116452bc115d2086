package balances

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaclub/settlement/internal/testutil"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

func TestLockMissingUser(t *testing.T) {
	conn := testutil.OpenDB(t)
	_, err := NewLedger(conn).Lock(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreditAndDebit(t *testing.T) {
	conn := testutil.OpenDB(t)
	user := testutil.SeedUser(t, conn, "100", 0)
	ledger := NewLedger(conn)
	ctx := context.Background()

	locked, err := ledger.Lock(ctx, user.ID)
	require.NoError(t, err)
	testutil.RequireMoney(t, "locked balance", locked.Balance, "100")

	require.NoError(t, ledger.Credit(ctx, user.ID, testutil.Dec(t, "25.50")))
	require.NoError(t, ledger.Debit(ctx, user.ID, testutil.Dec(t, "125.50")))
	testutil.RequireMoney(t, "balance", testutil.User(t, conn, user.ID).Balance, "0")
}

func TestDebitNeverGoesNegative(t *testing.T) {
	conn := testutil.OpenDB(t)
	user := testutil.SeedUser(t, conn, "10", 0)
	ledger := NewLedger(conn)

	err := ledger.Debit(context.Background(), user.ID, testutil.Dec(t, "10.01"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	testutil.RequireMoney(t, "balance", testutil.User(t, conn, user.ID).Balance, "10")
}

func TestNegativeAmountsRejected(t *testing.T) {
	conn := testutil.OpenDB(t)
	user := testutil.SeedUser(t, conn, "10", 0)
	ledger := NewLedger(conn)
	ctx := context.Background()

	assert.True(t, pkgerrors.IsCode(ledger.Credit(ctx, user.ID, testutil.Dec(t, "-1")), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(ledger.Debit(ctx, user.ID, testutil.Dec(t, "-1")), pkgerrors.CodeValidation))
}

func TestCreditMissingUser(t *testing.T) {
	conn := testutil.OpenDB(t)
	err := NewLedger(conn).Credit(context.Background(), uuid.New(), testutil.Dec(t, "1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestScoreAdjustments(t *testing.T) {
	conn := testutil.OpenDB(t)
	user := testutil.SeedUser(t, conn, "0", 30)
	ledger := NewLedger(conn)
	ctx := context.Background()

	require.NoError(t, ledger.AdjustScore(ctx, user.ID, 20))
	assert.Equal(t, 50, testutil.User(t, conn, user.ID).Score)

	require.NoError(t, ledger.AdjustScore(ctx, user.ID, -80))
	assert.Equal(t, 0, testutil.User(t, conn, user.ID).Score, "score clamps at zero")

	require.NoError(t, ledger.AdjustScore(ctx, user.ID, 5))
	require.NoError(t, ledger.ResetScore(ctx, user.ID))
	assert.Equal(t, 0, testutil.User(t, conn, user.ID).Score)
}

func TestSumBalances(t *testing.T) {
	conn := testutil.OpenDB(t)
	ledger := NewLedger(conn)

	total, err := ledger.SumBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	testutil.SeedUser(t, conn, "10.25", 0)
	testutil.SeedUser(t, conn, "4.75", 0)
	total, err = ledger.SumBalances(context.Background())
	require.NoError(t, err)
	testutil.RequireMoney(t, "sum", total, "15")
}

func TestSetMembershipTier(t *testing.T) {
	conn := testutil.OpenDB(t)
	user := testutil.SeedUser(t, conn, "0", 0)
	ledger := NewLedger(conn)
	ctx := context.Background()

	require.NoError(t, ledger.SetMembershipTier(ctx, user.ID, enums.MembershipTierPro))
	assert.Equal(t, enums.MembershipTierPro, testutil.User(t, conn, user.ID).MembershipTier)

	err := ledger.SetMembershipTier(ctx, user.ID, enums.MembershipTier("GOLD"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
