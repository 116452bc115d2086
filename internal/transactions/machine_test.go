package transactions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/balances"
	"github.com/quotaclub/settlement/internal/gateway"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/marketplace"
	"github.com/quotaclub/settlement/internal/quotas"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/internal/scope"
	"github.com/quotaclub/settlement/internal/testutil"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T, conn *gorm.DB, cfg config.LedgerConfig) *StateMachine {
	t.Helper()
	txRepo := ledger.NewRepository(conn)
	ledgerSvc, err := ledger.NewService(txRepo)
	require.NoError(t, err)
	recorder, err := audit.NewRecorder(audit.NewRepository(conn))
	require.NoError(t, err)
	machine, err := NewStateMachine(Params{
		Transactions: txRepo,
		Ledger:       ledgerSvc,
		Loans:        loans.NewRepository(conn),
		Reserve:      reserve.NewRepository(conn),
		Balances:     balances.NewLedger(conn),
		Quotas:       quotas.NewRepository(conn),
		Marketplace:  marketplace.NewRepository(conn),
		Gateway: gateway.NewCalculator(config.GatewayConfig{
			PixRate:   testutil.Dec(t, "0.0099"),
			CardRate:  testutil.Dec(t, "0.0498"),
			CardFixed: testutil.Dec(t, "0.40"),
		}),
		Audit:  recorder,
		Config: cfg,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return machine
}

func seedTxn(t *testing.T, conn *gorm.DB, owner uuid.UUID, txnType enums.TransactionType, amount string, meta string) models.Transaction {
	t.Helper()
	txn := models.Transaction{
		OwnerID:      owner,
		Type:         txnType,
		Amount:       testutil.Dec(t, amount),
		Status:       enums.TransactionStatusPending,
		PayoutStatus: enums.PayoutStatusNone,
	}
	if meta != "" {
		txn.Metadata = json.RawMessage(meta)
	}
	require.NoError(t, conn.Create(&txn).Error)
	return txn
}

func process(t *testing.T, client *db.Client, machine *StateMachine, id uuid.UUID, action enums.ApprovalAction) scope.Result[*Outcome] {
	t.Helper()
	return scope.Run(context.Background(), client, func(ctx context.Context, tx *gorm.DB) (*Outcome, error) {
		return machine.Process(ctx, tx, Input{TransactionID: id, Action: action})
	})
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.Transaction {
	t.Helper()
	var txn models.Transaction
	require.NoError(t, conn.First(&txn, "id = ?", id).Error)
	return txn
}

func TestProcess_WithdrawalMovesOnlyNetAmount(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "100", `{"pixKey":"member@pix"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	assert.False(t, res.Data.LiquidityWarning)

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "905")
	testutil.RequireMoney(t, "tax reserve", acct.TaxReserve, "1.25")
	testutil.RequireMoney(t, "owner profit", acct.OwnerProfit, "1.25")

	stored := reload(t, conn, txn.ID)
	assert.Equal(t, enums.TransactionStatusApproved, stored.Status)
	assert.Equal(t, enums.PayoutStatusPendingPayment, stored.PayoutStatus)
	require.NotNil(t, stored.ProcessedAt)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(stored.Metadata, &meta))
	assert.Equal(t, "5", meta["feeAmount"])
	assert.Equal(t, "95", meta["netAmount"])
	assert.Equal(t, "member@pix", meta["pixKey"])
}

func TestProcess_WithdrawalWarnsButApprovesBeyondLiquidity(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SeedUser(t, conn, "5000", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "500", `{"pixKey":"k"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	assert.True(t, res.Data.LiquidityWarning)
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "510")
}

func TestProcess_BuyQuotaDefersReferralWhenProfitIsShort(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	referrer := testutil.SeedUser(t, conn, "0", 0)
	buyer := testutil.SeedUser(t, conn, "0", 0)
	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", buyer.ID).Update("referred_by", referrer.ID).Error)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000", "profit_pool": "3"})
	txn := seedTxn(t, conn, buyer.ID, enums.TransactionTypeBuyQuota, "100", `{"useBalance":true,"quantity":2}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	require.NotNil(t, res.Data.Referral)
	assert.Equal(t, enums.TransactionStatusPending, res.Data.Referral.Status)
	assert.Nil(t, res.Data.Referral.ProcessedAt)

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "profit pool", acct.ProfitPool, "3")
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "1000")
	testutil.RequireMoney(t, "referrer balance", testutil.User(t, conn, referrer.ID).Balance, "0")
	assert.Equal(t, 20, testutil.User(t, conn, buyer.ID).Score)

	value, err := quotas.NewRepository(conn).ActiveValue(context.Background(), buyer.ID)
	require.NoError(t, err)
	testutil.RequireMoney(t, "quota value", value, "100")

	var pending []models.Transaction
	require.NoError(t, conn.Where("owner_id = ? AND type = ?", referrer.ID, enums.TransactionTypeReferralBonus).Find(&pending).Error)
	require.Len(t, pending, 1)
	payload, err := DecodePayload(pending[0].Type, pending[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, payload.(*ReferralBonus).SourceTransactionID)
}

func TestProcess_BuyQuotaPaysReferralFromProfit(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	referrer := testutil.SeedUser(t, conn, "0", 0)
	buyer := testutil.SeedUser(t, conn, "0", 0)
	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", buyer.ID).Update("referred_by", referrer.ID).Error)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000", "profit_pool": "10"})
	txn := seedTxn(t, conn, buyer.ID, enums.TransactionTypeBuyQuota, "50", `{"useBalance":true,"quantity":1}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	require.NotNil(t, res.Data.Referral)
	assert.Equal(t, enums.TransactionStatusApproved, res.Data.Referral.Status)

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "profit pool", acct.ProfitPool, "5")
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "1005")
	testutil.RequireMoney(t, "referrer balance", testutil.User(t, conn, referrer.ID).Balance, "5")
	assert.Len(t, res.Data.Notices, 2)
}

func TestProcess_ExternalBuyQuotaAbsorbsGatewayCost(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	buyer := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, buyer.ID, enums.TransactionTypeBuyQuota, "105",
		`{"paymentMethod":"PIX","quantity":2,"basePrice":"100","serviceFee":"5"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "1104.01")
	testutil.RequireMoney(t, "gateway costs", acct.TotalGatewayCosts, "0.99")
	testutil.RequireMoney(t, "tax reserve", acct.TaxReserve, "1.25")
	testutil.RequireMoney(t, "investment reserve", acct.InvestmentReserve, "1.25")
	assert.Nil(t, res.Data.Referral)
}

func TestProcess_DepositIsAtMostOnce(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, member.ID, enums.TransactionTypeDeposit, "200", `{"paymentMethod":"PIX"}`)

	first := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, first.Success, "approve failed: %v", first.Cause())
	second := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.False(t, second.Success)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, second.Err.Code())
	third := process(t, client, machine, txn.ID, enums.ApprovalActionReject)
	require.False(t, third.Success)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, third.Err.Code())

	testutil.RequireMoney(t, "member balance", testutil.User(t, conn, member.ID).Balance, "200")
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "1198.02")
}

func TestProcess_ConcurrentDepositApprovalsSettleOnce(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, member.ID, enums.TransactionTypeDeposit, "200", `{"paymentMethod":"PIX"}`)

	const callers = 8
	results := make([]scope.Result[*Outcome], callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = scope.Run(context.Background(), client, func(ctx context.Context, tx *gorm.DB) (*Outcome, error) {
				return machine.Process(ctx, tx, Input{TransactionID: txn.ID, Action: enums.ApprovalActionApprove})
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
			continue
		}
		assert.Equal(t, pkgerrors.CodeAlreadyProcessed, res.Err.Code())
	}
	assert.Equal(t, 1, succeeded)
	testutil.RequireMoney(t, "member balance", testutil.User(t, conn, member.ID).Balance, "200")
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "1198.02")
}

func TestProcess_BuyQuotaRejectsAmountMismatch(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	buyer := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	short := seedTxn(t, conn, buyer.ID, enums.TransactionTypeBuyQuota, "60", `{"useBalance":true,"quantity":2}`)
	wrongBase := seedTxn(t, conn, buyer.ID, enums.TransactionTypeBuyQuota, "105",
		`{"paymentMethod":"PIX","quantity":2,"basePrice":"80","serviceFee":"25"}`)

	for _, id := range []uuid.UUID{short.ID, wrongBase.ID} {
		res := process(t, client, machine, id, enums.ApprovalActionApprove)
		require.False(t, res.Success)
		assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())
		assert.Equal(t, enums.TransactionStatusPending, reload(t, conn, id).Status)
	}

	value, err := quotas.NewRepository(conn).ActiveValue(context.Background(), buyer.ID)
	require.NoError(t, err)
	assert.True(t, value.IsZero())
	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "1000")
	testutil.RequireMoney(t, "tax reserve", acct.TaxReserve, "0")
	assert.Equal(t, 0, testutil.User(t, conn, buyer.ID).Score)
}

func TestProcess_WithdrawalHonorsQuotedFee(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	cfg := config.DefaultLedgerConfig()
	cfg.WithdrawalMinFee = testutil.Dec(t, "10")
	machine := newTestMachine(t, conn, cfg)

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	quoted := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "100",
		`{"pixKey":"k","feeAmount":"5","netAmount":"95"}`)
	res := process(t, client, machine, quoted.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "905")
	testutil.RequireMoney(t, "tax reserve", acct.TaxReserve, "1.25")

	unquoted := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "100", `{"pixKey":"k"}`)
	res = process(t, client, machine, unquoted.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "approve failed: %v", res.Cause())
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "815")

	broken := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "100",
		`{"pixKey":"k","feeAmount":"5","netAmount":"90"}`)
	res = process(t, client, machine, broken.ID, enums.ApprovalActionApprove)
	require.False(t, res.Success)
	assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())
	assert.Equal(t, enums.TransactionStatusPending, reload(t, conn, broken.ID).Status)
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "815")
}

func TestProcess_RejectRefundsBalanceFundedRequests(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	buy := seedTxn(t, conn, member.ID, enums.TransactionTypeBuyQuota, "100", `{"useBalance":true,"quantity":2}`)
	withdrawal := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "40", `{"pixKey":"k"}`)
	external := seedTxn(t, conn, member.ID, enums.TransactionTypeBuyQuota, "50", `{"paymentMethod":"CARD","quantity":1}`)

	for _, id := range []uuid.UUID{buy.ID, withdrawal.ID, external.ID} {
		res := process(t, client, machine, id, enums.ApprovalActionReject)
		require.True(t, res.Success, "reject failed: %v", res.Cause())
		assert.Equal(t, enums.TransactionStatusRejected, reload(t, conn, id).Status)
	}

	testutil.RequireMoney(t, "refunded balance", testutil.User(t, conn, member.ID).Balance, "140")
	testutil.RequireMoney(t, "operating cash", testutil.Reserve(t, conn).OperatingCash, "1000")

	var audits int64
	require.NoError(t, conn.Model(&models.AuditLog{}).Where("action = ?", enums.AuditActionTransactionRejected).Count(&audits).Error)
	assert.Equal(t, int64(3), audits)
}

func seedApprovedLoan(t *testing.T, conn *gorm.DB, borrower uuid.UUID, status enums.LoanStatus, due time.Time) models.Loan {
	t.Helper()
	loan := models.Loan{
		BorrowerID:             borrower,
		Amount:                 testutil.Dec(t, "1000"),
		TotalRepayment:         testutil.Dec(t, "1100"),
		OriginalAmount:         testutil.Dec(t, "1000"),
		OriginalTotalRepayment: testutil.Dec(t, "1100"),
		InstallmentsPlan:       2,
		Status:                 status,
		DueDate:                &due,
	}
	require.NoError(t, conn.Create(&loan).Error)
	return loan
}

func TestProcess_LoanInstallmentsAmortizeToPaid(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	borrower := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	loan := seedApprovedLoan(t, conn, borrower.ID, enums.LoanStatusPaymentPending, fixedNow.Add(24*time.Hour))
	meta := `{"useBalance":true,"loanId":"` + loan.ID.String() + `","isInstallment":true}`

	first := seedTxn(t, conn, borrower.ID, enums.TransactionTypeLoanPayment, "550", meta)
	res := process(t, client, machine, first.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "first installment failed: %v", res.Cause())

	var stored models.Loan
	require.NoError(t, conn.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, enums.LoanStatusApproved, stored.Status)
	testutil.RequireMoney(t, "amortized amount", stored.Amount, "500")
	testutil.RequireMoney(t, "amortized repayment", stored.TotalRepayment, "550")
	testutil.RequireMoney(t, "profit after first", testutil.Reserve(t, conn).ProfitPool, "50")
	assert.Equal(t, 25, testutil.User(t, conn, borrower.ID).Score)

	second := seedTxn(t, conn, borrower.ID, enums.TransactionTypeLoanPayment, "550", meta)
	res = process(t, client, machine, second.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "second installment failed: %v", res.Cause())

	require.NoError(t, conn.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, enums.LoanStatusPaid, stored.Status)
	paid, err := loans.NewRepository(conn).PaidToDate(context.Background(), loan.ID)
	require.NoError(t, err)
	testutil.RequireMoney(t, "paid to date", paid, "1100")

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "profit pool", acct.ProfitPool, "100")
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "900")
	require.Len(t, res.Data.Notices, 2)
}

func TestProcess_ExternalFullPaymentReturnsPrincipal(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	borrower := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "0"})
	loan := seedApprovedLoan(t, conn, borrower.ID, enums.LoanStatusOverdue, fixedNow.Add(-48*time.Hour))
	meta := `{"paymentMethod":"PIX","loanId":"` + loan.ID.String() + `"}`

	short := seedTxn(t, conn, borrower.ID, enums.TransactionTypeLoanPayment, "900", meta)
	res := process(t, client, machine, short.ID, enums.ApprovalActionApprove)
	require.False(t, res.Success)
	assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())

	full := seedTxn(t, conn, borrower.ID, enums.TransactionTypeLoanPayment, "1100", meta)
	res = process(t, client, machine, full.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "full payment failed: %v", res.Cause())

	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "989.11")
	testutil.RequireMoney(t, "profit pool", acct.ProfitPool, "100")
	testutil.RequireMoney(t, "gateway costs", acct.TotalGatewayCosts, "10.89")
	assert.Equal(t, 0, testutil.User(t, conn, borrower.ID).Score, "late payment earns no score")

	var stored models.Loan
	require.NoError(t, conn.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, enums.LoanStatusPaid, stored.Status)
	assert.True(t, stored.TotalRepayment.IsZero())
}

func TestProcess_RejectedLoanPaymentReopensLoan(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	borrower := testutil.SeedUser(t, conn, "0", 0)
	loan := seedApprovedLoan(t, conn, borrower.ID, enums.LoanStatusPaymentPending, fixedNow.Add(24*time.Hour))
	txn := seedTxn(t, conn, borrower.ID, enums.TransactionTypeLoanPayment, "1100",
		`{"useBalance":true,"loanId":"`+loan.ID.String()+`"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionReject)
	require.True(t, res.Success, "reject failed: %v", res.Cause())

	var stored models.Loan
	require.NoError(t, conn.First(&stored, "id = ?", loan.ID).Error)
	assert.Equal(t, enums.LoanStatusApproved, stored.Status)
	testutil.RequireMoney(t, "refund", testutil.User(t, conn, borrower.ID).Balance, "1100")
}

func TestProcess_MarketPurchaseCreditsSellerAndSplitsFee(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	buyer := testutil.SeedUser(t, conn, "0", 0)
	seller := testutil.SeedUser(t, conn, "0", 0)
	order := models.MarketOrder{
		ID:        uuid.New(),
		ListingID: uuid.New(),
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		Price:     testutil.Dec(t, "200"),
		Status:    enums.MarketOrderStatusPendingPayment,
	}
	require.NoError(t, conn.Create(&order).Error)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, buyer.ID, enums.TransactionTypeMarketPurchase, "200",
		`{"useBalance":true,"orderId":"`+order.ID.String()+`","platformFee":"20"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "purchase failed: %v", res.Cause())

	testutil.RequireMoney(t, "seller balance", testutil.User(t, conn, seller.ID).Balance, "180")
	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operating cash", acct.OperatingCash, "1000")
	testutil.RequireMoney(t, "operational reserve", acct.OperationalReserve, "5")

	var stored models.MarketOrder
	require.NoError(t, conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.MarketOrderStatusPaid, stored.Status)
}

func TestProcess_MarketPurchaseRejectsUnderpayment(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	buyer := testutil.SeedUser(t, conn, "0", 0)
	seller := testutil.SeedUser(t, conn, "0", 0)
	order := models.MarketOrder{
		ID:        uuid.New(),
		ListingID: uuid.New(),
		BuyerID:   buyer.ID,
		SellerID:  seller.ID,
		Price:     testutil.Dec(t, "200"),
		Status:    enums.MarketOrderStatusPendingPayment,
	}
	require.NoError(t, conn.Create(&order).Error)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, buyer.ID, enums.TransactionTypeMarketPurchase, "10",
		`{"useBalance":true,"orderId":"`+order.ID.String()+`","platformFee":"20"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.False(t, res.Success)
	assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())

	testutil.RequireMoney(t, "seller balance", testutil.User(t, conn, seller.ID).Balance, "0")
	acct := testutil.Reserve(t, conn)
	testutil.RequireMoney(t, "operational reserve", acct.OperationalReserve, "0")
	testutil.RequireMoney(t, "owner profit", acct.OwnerProfit, "0")

	var stored models.MarketOrder
	require.NoError(t, conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.MarketOrderStatusPendingPayment, stored.Status)
	assert.Equal(t, enums.TransactionStatusPending, reload(t, conn, txn.ID).Status)
}

func TestProcess_MembershipUpgradeAndBoost(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	listing := models.MarketListing{ID: uuid.New(), SellerID: member.ID}
	require.NoError(t, conn.Create(&listing).Error)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})

	upgrade := seedTxn(t, conn, member.ID, enums.TransactionTypeMembershipUpgrade, "100", `{"paymentMethod":"CARD","tier":"PRO"}`)
	res := process(t, client, machine, upgrade.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "upgrade failed: %v", res.Cause())
	assert.Equal(t, enums.MembershipTierPro, testutil.User(t, conn, member.ID).MembershipTier)
	testutil.RequireMoney(t, "cash after upgrade", testutil.Reserve(t, conn).OperatingCash, "1094.62")

	boost := seedTxn(t, conn, member.ID, enums.TransactionTypeMarketBoost, "20",
		`{"useBalance":true,"listingId":"`+listing.ID.String()+`","durationHours":48}`)
	res = process(t, client, machine, boost.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "boost failed: %v", res.Cause())

	var stored models.MarketListing
	require.NoError(t, conn.First(&stored, "id = ?", listing.ID).Error)
	assert.True(t, stored.Boosted)
	require.NotNil(t, stored.BoostedUntil)
	assert.True(t, stored.BoostedUntil.Equal(fixedNow.Add(48*time.Hour)))
}

func TestProcess_PendingReferralBonusWaitsForProfit(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	referrer := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "100", "profit_pool": "2"})
	txn := seedTxn(t, conn, referrer.ID, enums.TransactionTypeReferralBonus, "5",
		`{"referredUserId":"`+uuid.NewString()+`","sourceTransactionId":"`+uuid.NewString()+`"}`)

	res := process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.False(t, res.Success)
	assert.Equal(t, pkgerrors.CodeInsufficientLiquidity, res.Err.Code())
	assert.Equal(t, enums.TransactionStatusPending, reload(t, conn, txn.ID).Status)

	testutil.SetReserve(t, conn, map[string]string{"profit_pool": "8"})
	res = process(t, client, machine, txn.ID, enums.ApprovalActionApprove)
	require.True(t, res.Success, "retry failed: %v", res.Cause())
	testutil.RequireMoney(t, "referrer balance", testutil.User(t, conn, referrer.ID).Balance, "5")
	testutil.RequireMoney(t, "profit pool", testutil.Reserve(t, conn).ProfitPool, "3")
}

func TestProcess_RejectsSystemGeneratedAndBadInput(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	system := seedTxn(t, conn, member.ID, enums.TransactionTypeSystemAdjustment, "10", "")
	res := process(t, client, machine, system.ID, enums.ApprovalActionApprove)
	require.False(t, res.Success)
	assert.Equal(t, pkgerrors.CodeStateConflict, res.Err.Code())

	res = process(t, client, machine, uuid.Nil, enums.ApprovalActionApprove)
	assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())

	res = process(t, client, machine, system.ID, enums.ApprovalAction("MAYBE"))
	assert.Equal(t, pkgerrors.CodeValidation, res.Err.Code())

	res = process(t, client, machine, uuid.New(), enums.ApprovalActionApprove)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, res.Err.Code())
}

func TestConfirmPayout(t *testing.T) {
	client, conn := testutil.OpenClient(t)
	machine := newTestMachine(t, conn, config.DefaultLedgerConfig())

	member := testutil.SeedUser(t, conn, "0", 0)
	testutil.SetReserve(t, conn, map[string]string{"operating_cash": "1000"})
	txn := seedTxn(t, conn, member.ID, enums.TransactionTypeWithdrawal, "100", `{"pixKey":"k"}`)

	confirm := func() scope.Result[*PayoutOutcome] {
		return scope.Run(context.Background(), client, func(ctx context.Context, tx *gorm.DB) (*PayoutOutcome, error) {
			return machine.ConfirmPayout(ctx, tx, PayoutInput{TransactionID: txn.ID})
		})
	}

	early := confirm()
	require.False(t, early.Success)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, early.Err.Code())

	require.True(t, process(t, client, machine, txn.ID, enums.ApprovalActionApprove).Success)

	res := confirm()
	require.True(t, res.Success, "confirm failed: %v", res.Cause())
	assert.Equal(t, enums.PayoutStatusPaid, reload(t, conn, txn.ID).PayoutStatus)
	require.Len(t, res.Data.Notices, 1)

	again := confirm()
	require.False(t, again.Success)
	assert.Equal(t, pkgerrors.CodeAlreadyProcessed, again.Err.Code())
	testutil.RequireMoney(t, "cash untouched by confirmation", testutil.Reserve(t, conn).OperatingCash, "905")
}
