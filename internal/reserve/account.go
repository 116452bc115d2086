package reserve

import (
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/db/models"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/money"
)

// CashReason names why operating cash moved. The set is closed.
type CashReason string

const (
	ReasonGatewayCost         CashReason = "gateway_cost"
	ReasonLoanPayout          CashReason = "loan_payout"
	ReasonLoanPrincipalReturn CashReason = "loan_principal_return"
	ReasonQuotaBuyIn          CashReason = "quota_buy_in"
	ReasonQuotaResale         CashReason = "quota_resale"
	ReasonWithdrawalPayout    CashReason = "withdrawal_payout"
	ReasonDepositIntake       CashReason = "deposit_intake"
	ReasonLiquidationRecovery CashReason = "liquidation_recovery"
	ReasonFeeIntake           CashReason = "fee_intake"
	ReasonMarketIntake        CashReason = "market_intake"
	ReasonProfitTransfer      CashReason = "profit_transfer"
	ReasonGuaranteeFunding    CashReason = "guarantee_funding"
)

// IsValid reports whether the reason is one of the accepted cash movements.
func (r CashReason) IsValid() bool {
	switch r {
	case ReasonGatewayCost, ReasonLoanPayout, ReasonLoanPrincipalReturn, ReasonQuotaBuyIn,
		ReasonQuotaResale, ReasonWithdrawalPayout, ReasonDepositIntake, ReasonLiquidationRecovery,
		ReasonFeeIntake, ReasonMarketIntake, ReasonProfitTransfer, ReasonGuaranteeFunding:
		return true
	default:
		return false
	}
}

// Movement is one recorded change to operating cash.
type Movement struct {
	Reason CashReason      `json:"reason"`
	Delta  decimal.Decimal `json:"delta"`
}

// Account is the locked reserve row for the duration of one scope. It is never
// shared across scopes; persist changes with Repository.Save.
type Account struct {
	row       *models.ReserveAccount
	movements []Movement
}

// NewAccount wraps a loaded reserve row.
func NewAccount(row *models.ReserveAccount) *Account {
	return &Account{row: row}
}

// Snapshot is a read-only copy of every bucket.
type Snapshot struct {
	OperatingCash       decimal.Decimal `json:"operating_cash"`
	ProfitPool          decimal.Decimal `json:"profit_pool"`
	TaxReserve          decimal.Decimal `json:"tax_reserve"`
	OperationalReserve  decimal.Decimal `json:"operational_reserve"`
	OwnerProfit         decimal.Decimal `json:"owner_profit"`
	InvestmentReserve   decimal.Decimal `json:"investment_reserve"`
	CreditGuaranteeFund decimal.Decimal `json:"credit_guarantee_fund"`
	TotalGatewayCosts   decimal.Decimal `json:"total_gateway_costs"`
	TotalManualCosts    decimal.Decimal `json:"total_manual_costs"`
}

// Snapshot copies the current bucket values.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		OperatingCash:       a.row.OperatingCash,
		ProfitPool:          a.row.ProfitPool,
		TaxReserve:          a.row.TaxReserve,
		OperationalReserve:  a.row.OperationalReserve,
		OwnerProfit:         a.row.OwnerProfit,
		InvestmentReserve:   a.row.InvestmentReserve,
		CreditGuaranteeFund: a.row.CreditGuaranteeFund,
		TotalGatewayCosts:   a.row.TotalGatewayCosts,
		TotalManualCosts:    a.row.TotalManualCosts,
	}
}

// Movements returns the operating cash changes applied so far.
func (a *Account) Movements() []Movement {
	out := make([]Movement, len(a.movements))
	copy(out, a.movements)
	return out
}

// OperatingCash returns the club's spendable balance.
func (a *Account) OperatingCash() decimal.Decimal { return a.row.OperatingCash }

// ProfitPool returns the accumulated distributable income.
func (a *Account) ProfitPool() decimal.Decimal { return a.row.ProfitPool }

// GuaranteeFund returns the segregated credit guarantee balance.
func (a *Account) GuaranteeFund() decimal.Decimal { return a.row.CreditGuaranteeFund }

// CommittedReserves is the part of operating cash earmarked for tax,
// operations and the owner.
func (a *Account) CommittedReserves() decimal.Decimal {
	return money.Sum(a.row.TaxReserve, a.row.OperationalReserve, a.row.OwnerProfit)
}

// LendableCash is operating cash not earmarked by committed reserves.
func (a *Account) LendableCash() decimal.Decimal {
	return a.row.OperatingCash.Sub(a.CommittedReserves())
}

// RealLiquidity is lendable cash net of member balances and fixed costs.
func (a *Account) RealLiquidity(userBalances, fixedCosts decimal.Decimal) decimal.Decimal {
	return a.LendableCash().Sub(userBalances).Sub(fixedCosts)
}

// AdjustOperatingCash is the only way operating cash changes.
func (a *Account) AdjustOperatingCash(delta decimal.Decimal, reason CashReason) error {
	if !reason.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeInternal, "unjustified operating cash movement %q", reason)
	}
	delta = money.Round(delta)
	if delta.IsZero() {
		return nil
	}
	a.row.OperatingCash = a.row.OperatingCash.Add(delta)
	a.movements = append(a.movements, Movement{Reason: reason, Delta: delta})
	return nil
}

// SplitFee adds a retained fee to the four reserve buckets. The fee is
// already inside operating cash, so cash itself does not move.
func (a *Account) SplitFee(amount decimal.Decimal, shares Shares) FeeSplit {
	split := shares.Split(amount)
	a.row.TaxReserve = a.row.TaxReserve.Add(split.Tax)
	a.row.OperationalReserve = a.row.OperationalReserve.Add(split.Operational)
	a.row.OwnerProfit = a.row.OwnerProfit.Add(split.Owner)
	a.row.InvestmentReserve = a.row.InvestmentReserve.Add(split.Investment)
	return split
}

// RecordGatewayCost absorbs a processor fee out of operating cash.
func (a *Account) RecordGatewayCost(cost decimal.Decimal) error {
	cost = money.Round(cost)
	if !cost.IsPositive() {
		return nil
	}
	if err := a.AdjustOperatingCash(cost.Neg(), ReasonGatewayCost); err != nil {
		return err
	}
	a.row.TotalGatewayCosts = a.row.TotalGatewayCosts.Add(cost)
	return nil
}

// AddProfit routes income that arrived from outside straight into the profit pool.
func (a *Account) AddProfit(amount decimal.Decimal) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return
	}
	a.row.ProfitPool = a.row.ProfitPool.Add(amount)
}

// MoveCashToProfit transfers income already held in operating cash into the profit pool.
func (a *Account) MoveCashToProfit(amount decimal.Decimal) error {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil
	}
	if err := a.AdjustOperatingCash(amount.Neg(), ReasonProfitTransfer); err != nil {
		return err
	}
	a.row.ProfitPool = a.row.ProfitPool.Add(amount)
	return nil
}

// MoveProfitToCash releases profit back into operating cash, typically to back
// a member balance credit. Fails when the pool cannot cover amount.
func (a *Account) MoveProfitToCash(amount decimal.Decimal) error {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil
	}
	if a.row.ProfitPool.LessThan(amount) {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientLiquidity,
			"profit pool %s cannot cover %s", a.row.ProfitPool.StringFixed(2), amount.StringFixed(2))
	}
	a.row.ProfitPool = a.row.ProfitPool.Sub(amount)
	return a.AdjustOperatingCash(amount, ReasonProfitTransfer)
}

// FundGuarantee moves operating cash into the segregated guarantee fund.
func (a *Account) FundGuarantee(amount decimal.Decimal) error {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil
	}
	if err := a.AdjustOperatingCash(amount.Neg(), ReasonGuaranteeFunding); err != nil {
		return err
	}
	a.row.CreditGuaranteeFund = a.row.CreditGuaranteeFund.Add(amount)
	return nil
}

// CoverFromGuaranteeFund draws up to debt from the fund and returns the amount
// drawn. Operating cash is untouched.
func (a *Account) CoverFromGuaranteeFund(debt decimal.Decimal) decimal.Decimal {
	debt = money.Round(debt)
	if !debt.IsPositive() || !a.row.CreditGuaranteeFund.IsPositive() {
		return decimal.Zero
	}
	cover := money.Min(debt, a.row.CreditGuaranteeFund)
	a.row.CreditGuaranteeFund = a.row.CreditGuaranteeFund.Sub(cover)
	return cover
}
