package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/money"
)

// collectExternal books money that came in through a processor and absorbs
// the processor's cost. It returns the cost.
func (m *StateMachine) collectExternal(acct *reserve.Account, amount, costBase decimal.Decimal, method enums.PaymentMethod, reason reserve.CashReason) (decimal.Decimal, error) {
	if err := acct.AdjustOperatingCash(amount, reason); err != nil {
		return decimal.Zero, err
	}
	cost := m.gateway.Cost(costBase, method)
	if err := acct.RecordGatewayCost(cost); err != nil {
		return decimal.Zero, err
	}
	return cost, nil
}

func (m *StateMachine) approveBuyQuota(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *BuyQuota, out *Outcome) error {
	serviceFee := money.Round(p.ServiceFee)
	if serviceFee.GreaterThan(txn.Amount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "service fee exceeds transaction amount").
			WithDetails(map[string]any{"serviceFee": serviceFee.StringFixed(2), "amount": txn.Amount.StringFixed(2)})
	}
	base := money.Round(m.cfg.QuotaPrice.Mul(decimal.NewFromInt(int64(p.Quantity))))
	if p.BasePrice.IsPositive() && !money.Equal(p.BasePrice, base) {
		return pkgerrors.New(pkgerrors.CodeValidation, "base price does not match quota price").
			WithDetails(map[string]any{"basePrice": money.Round(p.BasePrice).StringFixed(2), "expected": base.StringFixed(2)})
	}
	if !money.Equal(txn.Amount, base.Add(serviceFee)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount does not cover quotas and service fee").
			WithDetails(map[string]any{
				"amount":   txn.Amount.StringFixed(2),
				"expected": base.Add(serviceFee).StringFixed(2),
				"quantity": p.Quantity,
			})
	}

	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}

	gatewayCost := decimal.Zero
	if p.External() {
		if gatewayCost, err = m.collectExternal(acct, txn.Amount, base, p.PaymentMethod, reserve.ReasonQuotaBuyIn); err != nil {
			return err
		}
	}
	split := acct.SplitFee(serviceFee, m.shares)

	issued, err := m.quotas.WithTx(tx).Issue(ctx, txn.OwnerID, p.Quantity, m.cfg.QuotaPrice)
	if err != nil {
		return err
	}

	members := m.balances.WithTx(tx)
	buyer, err := members.Lock(ctx, txn.OwnerID)
	if err != nil {
		return err
	}
	if err := members.AdjustScore(ctx, buyer.ID, p.Quantity*m.cfg.ScorePerQuota); err != nil {
		return err
	}

	if buyer.ReferredBy != nil && *buyer.ReferredBy != buyer.ID {
		referral, err := m.payReferral(ctx, tx, acct, txn, buyer)
		if err != nil {
			return err
		}
		if referral != nil {
			out.Referral = referral
			if referral.Status == enums.TransactionStatusApproved {
				out.notify(referral.OwnerID, enums.NotificationTypeReferral, "Referral bonus paid",
					fmt.Sprintf("%s was credited for a member you referred.", referral.Amount.StringFixed(2)))
			} else {
				out.notify(referral.OwnerID, enums.NotificationTypeReferral, "Referral bonus scheduled",
					fmt.Sprintf("Your %s referral bonus will be paid once club profit allows it.", referral.Amount.StringFixed(2)))
			}
		}
	}

	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{
		"quotasIssued": len(issued),
		"quotaPrice":   m.cfg.QuotaPrice,
		"gatewayCost":  gatewayCost,
		"feeSplit":     split,
	})
	return err
}

// payReferral pays the fixed bonus to the buyer's referrer out of the profit
// pool, or leaves it PENDING when the pool cannot cover it yet.
func (m *StateMachine) payReferral(ctx context.Context, tx *gorm.DB, acct *reserve.Account, source *models.Transaction, buyer *models.User) (*models.Transaction, error) {
	bonus := money.Round(m.cfg.ReferralBonus)
	if !bonus.IsPositive() {
		return nil, nil
	}
	referrerID := *buyer.ReferredBy
	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, referrerID); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			m.logg.Warn(m.logg.WithField(ctx, "referrer_id", referrerID.String()), "referrer missing, bonus skipped")
			return nil, nil
		}
		return nil, err
	}

	status := enums.TransactionStatusApproved
	if acct.ProfitPool().LessThan(bonus) {
		status = enums.TransactionStatusPending
	} else {
		if err := acct.MoveProfitToCash(bonus); err != nil {
			return nil, err
		}
		if err := members.Credit(ctx, referrerID, bonus); err != nil {
			return nil, err
		}
	}

	referral, err := m.ledger.WithTx(tx).Record(ctx, ledger.RecordInput{
		OwnerID:     referrerID,
		Type:        enums.TransactionTypeReferralBonus,
		Amount:      bonus,
		Status:      status,
		Description: "referral bonus",
		Metadata: &ReferralBonus{
			ReferredUserID:      buyer.ID,
			SourceTransactionID: source.ID,
		},
	})
	if err != nil {
		return nil, err
	}
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"referrer_id": referrerID.String(),
		"status":      string(status),
	}), "referral bonus recorded")
	return referral, nil
}

func (m *StateMachine) approveLoanPayment(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *LoanPayment, out *Outcome) error {
	loansRepo := m.loans.WithTx(tx)
	loan, err := loansRepo.LockInStatus(ctx, p.LoanID,
		enums.LoanStatusApproved, enums.LoanStatusPaymentPending, enums.LoanStatusOverdue)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "loan %s is not accepting payments", p.LoanID)
		}
		return err
	}
	if loan.BorrowerID != txn.OwnerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment owner is not the borrower")
	}
	ctx = m.logg.WithLoanID(ctx, loan.ID.String())

	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}

	paid, err := loansRepo.PaidToDate(ctx, loan.ID)
	if err != nil {
		return err
	}
	debt := loans.Debt(loan, paid)
	amount := txn.Amount
	tolerance := m.cfg.PaidTolerance
	switch {
	case !debt.IsPositive():
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "loan %s has no outstanding debt", loan.ID)
	case amount.GreaterThan(debt.Add(tolerance)):
		return pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds outstanding debt").
			WithDetails(map[string]any{"amount": amount.StringFixed(2), "debt": debt.StringFixed(2)})
	case !p.IsInstallment && amount.Add(tolerance).LessThan(debt):
		return pkgerrors.New(pkgerrors.CodeValidation, "full payment does not cover outstanding debt").
			WithDetails(map[string]any{"amount": amount.StringFixed(2), "debt": debt.StringFixed(2)})
	}

	principal, interest := loans.SplitPayment(loan, amount)
	gatewayCost := decimal.Zero
	if p.External() {
		if err := acct.AdjustOperatingCash(principal, reserve.ReasonLoanPrincipalReturn); err != nil {
			return err
		}
		acct.AddProfit(interest)
		gatewayCost = m.gateway.Cost(amount, p.PaymentMethod)
		if err := acct.RecordGatewayCost(gatewayCost); err != nil {
			return err
		}
	} else if err := acct.MoveCashToProfit(interest); err != nil {
		return err
	}

	txnID := txn.ID
	if err := loansRepo.AppendInstallment(ctx, &models.LoanInstallment{
		LoanID:        loan.ID,
		Amount:        amount,
		Source:        enums.InstallmentSourcePayment,
		TransactionID: &txnID,
	}); err != nil {
		return err
	}

	if p.IsInstallment {
		loans.Amortize(loan, principal, amount)
		if loans.IsPaidOff(loan, paid.Add(amount), tolerance) {
			loans.Settle(loan)
			loan.Status = enums.LoanStatusPaid
		} else {
			loan.Status = enums.LoanStatusApproved
		}
	} else {
		loans.Settle(loan)
		loan.Status = enums.LoanStatusPaid
	}
	if err := loansRepo.Save(ctx, loan); err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	now := m.now().UTC()
	onTime := loan.DueDate == nil || !now.After(*loan.DueDate)
	if onTime {
		members := m.balances.WithTx(tx)
		if _, err := members.Lock(ctx, loan.BorrowerID); err != nil {
			return err
		}
		if err := members.AdjustScore(ctx, loan.BorrowerID, m.cfg.OnTimePaymentScore); err != nil {
			return err
		}
	}
	if loan.Status == enums.LoanStatusPaid {
		out.notify(loan.BorrowerID, enums.NotificationTypeLoan, "Loan paid off",
			"Your loan is fully repaid. Thank you!")
	}

	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{
		"principal":   principal,
		"interest":    interest,
		"gatewayCost": gatewayCost,
		"onTime":      onTime,
		"loanStatus":  loan.Status,
	})
	return err
}

func (m *StateMachine) approveWithdrawal(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *Withdrawal, out *Outcome) error {
	fee, net, err := m.withdrawalCharge(ctx, txn, p)
	if err != nil {
		return err
	}

	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	owed, err := m.balances.WithTx(tx).SumBalances(ctx)
	if err != nil {
		return err
	}
	liquidity := acct.RealLiquidity(owed, m.cfg.MonthlyFixedCosts)
	if net.GreaterThan(liquidity) {
		out.LiquidityWarning = true
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"net_amount":     net.StringFixed(2),
			"real_liquidity": liquidity.StringFixed(2),
		}), "withdrawal exceeds real liquidity, payout queued anyway")
	}

	if err := acct.AdjustOperatingCash(net.Neg(), reserve.ReasonWithdrawalPayout); err != nil {
		return err
	}
	split := acct.SplitFee(fee, m.shares)
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{
		"pixKey":    p.PixKey,
		"feeAmount": fee,
		"netAmount": net,
		"feeSplit":  split,
	})
	return err
}

// withdrawalCharge returns the fee and net amount quoted when the withdrawal
// was requested. Requests without a quote are priced with the current config.
func (m *StateMachine) withdrawalCharge(ctx context.Context, txn *models.Transaction, p *Withdrawal) (decimal.Decimal, decimal.Decimal, error) {
	amount := money.Round(txn.Amount)
	current := money.Min(money.Max(money.Round(amount.Mul(m.cfg.WithdrawalFeeRate)), money.Round(m.cfg.WithdrawalMinFee)), amount)

	var fee, net decimal.Decimal
	switch {
	case p.FeeAmount != nil && p.NetAmount != nil:
		fee, net = money.Round(*p.FeeAmount), money.Round(*p.NetAmount)
	case p.FeeAmount != nil:
		fee = money.Round(*p.FeeAmount)
		net = amount.Sub(fee)
	case p.NetAmount != nil:
		net = money.Round(*p.NetAmount)
		fee = amount.Sub(net)
	default:
		return current, amount.Sub(current), nil
	}

	if fee.IsNegative() || net.IsNegative() || !fee.Add(net).Equal(amount) {
		return decimal.Zero, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "quoted withdrawal fee does not match amount").
			WithDetails(map[string]any{
				"amount":    amount.StringFixed(2),
				"feeAmount": fee.StringFixed(2),
				"netAmount": net.StringFixed(2),
			})
	}
	if !fee.Equal(current) {
		m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
			"quoted_fee":  fee.StringFixed(2),
			"current_fee": current.StringFixed(2),
		}), "withdrawal fee differs from current config, honoring quote")
	}
	return fee, net, nil
}

func (m *StateMachine) approveDeposit(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *Deposit) error {
	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	cost, err := m.collectExternal(acct, txn.Amount, txn.Amount, p.PaymentMethod, reserve.ReasonDepositIntake)
	if err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, txn.OwnerID); err != nil {
		return err
	}
	if err := members.Credit(ctx, txn.OwnerID, txn.Amount); err != nil {
		return err
	}
	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{"gatewayCost": cost})
	return err
}

// retainFee books a fee the club keeps: external money enters operating cash,
// the processor cost is absorbed and the remainder is split.
func (m *StateMachine) retainFee(acct *reserve.Account, fee decimal.Decimal, funding Funding, reason reserve.CashReason, intake decimal.Decimal) (reserve.FeeSplit, decimal.Decimal, error) {
	cost := decimal.Zero
	if funding.External() {
		var err error
		if cost, err = m.collectExternal(acct, intake, intake, funding.PaymentMethod, reason); err != nil {
			return reserve.FeeSplit{}, decimal.Zero, err
		}
	}
	return acct.SplitFee(money.NonNegative(fee.Sub(cost)), m.shares), cost, nil
}

func (m *StateMachine) approveMembershipUpgrade(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *MembershipUpgrade) error {
	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	split, cost, err := m.retainFee(acct, txn.Amount, p.Funding, reserve.ReasonFeeIntake, txn.Amount)
	if err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, txn.OwnerID); err != nil {
		return err
	}
	if err := members.SetMembershipTier(ctx, txn.OwnerID, p.Tier); err != nil {
		return err
	}
	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{"gatewayCost": cost, "feeSplit": split})
	return err
}

func (m *StateMachine) approveMarketPurchase(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *MarketPurchase, out *Outcome) error {
	order, err := m.marketplace.WithTx(tx).MarkOrderPaid(ctx, p.OrderID, m.now().UTC())
	if err != nil {
		return err
	}
	if order.BuyerID != txn.OwnerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "order buyer does not match transaction owner")
	}
	price := money.Round(order.Price)
	if !money.Equal(txn.Amount, price) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match order price").
			WithDetails(map[string]any{"amount": txn.Amount.StringFixed(2), "price": price.StringFixed(2)})
	}
	platformFee := money.Round(p.PlatformFee)
	if platformFee.GreaterThan(price) {
		return pkgerrors.New(pkgerrors.CodeValidation, "platform fee exceeds order price")
	}

	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	split, cost, err := m.retainFee(acct, platformFee, p.Funding, reserve.ReasonMarketIntake, txn.Amount)
	if err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	proceeds := price.Sub(platformFee)
	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, order.SellerID); err != nil {
		return err
	}
	if err := members.Credit(ctx, order.SellerID, proceeds); err != nil {
		return err
	}
	out.notify(order.SellerID, enums.NotificationTypeTransaction, "Item sold",
		fmt.Sprintf("%s from your marketplace sale was credited to your balance.", proceeds.StringFixed(2)))

	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{
		"sellerProceeds": proceeds,
		"gatewayCost":    cost,
		"feeSplit":       split,
	})
	return err
}

func (m *StateMachine) approveMarketBoost(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *MarketBoost) error {
	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	split, cost, err := m.retainFee(acct, txn.Amount, p.Funding, reserve.ReasonFeeIntake, txn.Amount)
	if err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	until := m.now().UTC().Add(time.Duration(p.DurationHours) * time.Hour)
	if err := m.marketplace.WithTx(tx).BoostListing(ctx, p.ListingID, until); err != nil {
		return err
	}
	txn.Metadata, err = stampMetadata(txn.Metadata, map[string]any{
		"boostedUntil": until,
		"gatewayCost":  cost,
		"feeSplit":     split,
	})
	return err
}

func (m *StateMachine) approveReferralBonus(ctx context.Context, tx *gorm.DB, txn *models.Transaction, p *ReferralBonus) error {
	reserveRepo := m.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return err
	}
	if err := acct.MoveProfitToCash(txn.Amount); err != nil {
		return err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return err
	}

	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, txn.OwnerID); err != nil {
		return err
	}
	if err := members.Credit(ctx, txn.OwnerID, txn.Amount); err != nil {
		return err
	}
	m.logg.Info(m.logg.WithField(ctx, "referred_user_id", p.ReferredUserID.String()), "pending referral bonus paid")
	return nil
}
