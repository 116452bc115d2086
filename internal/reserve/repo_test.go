package reserve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaclub/settlement/internal/testutil"
)

func TestRepositoryLockAndSave(t *testing.T) {
	conn := testutil.OpenDB(t)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "500", "credit_guarantee_fund": "40"})
	ctx := context.Background()

	tx := conn.Begin()
	repo := NewRepository(conn).WithTx(tx)
	acct, err := repo.Lock(ctx)
	require.NoError(t, err)
	assert.True(t, acct.OperatingCash().Equal(d("500")))

	require.NoError(t, acct.AdjustOperatingCash(d("120.50"), ReasonDepositIntake))
	acct.SplitFee(d("4"), quarterShares())
	acct.CoverFromGuaranteeFund(d("15"))
	require.NoError(t, repo.Save(ctx, acct))
	require.NoError(t, tx.Commit().Error)

	reloaded, err := NewRepository(conn).Get(ctx)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	testutil.RequireMoney(t, "operating cash", snap.OperatingCash, "620.50")
	testutil.RequireMoney(t, "tax reserve", snap.TaxReserve, "1")
	testutil.RequireMoney(t, "guarantee fund", snap.CreditGuaranteeFund, "25")
}

func TestRepositoryRollbackDiscardsChanges(t *testing.T) {
	conn := testutil.OpenDB(t)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "100"})
	ctx := context.Background()

	tx := conn.Begin()
	repo := NewRepository(conn).WithTx(tx)
	acct, err := repo.Lock(ctx)
	require.NoError(t, err)
	require.NoError(t, acct.AdjustOperatingCash(d("-60"), ReasonLoanPayout))
	require.NoError(t, repo.Save(ctx, acct))
	require.NoError(t, tx.Rollback().Error)

	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "100")
}
