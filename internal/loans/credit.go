package loans

import (
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/money"
)

// CreditLimit is the share of a member's active quota value they may borrow.
func CreditLimit(activeQuotaValue, ratio decimal.Decimal) decimal.Decimal {
	return money.NonNegative(money.Round(activeQuotaValue.Mul(ratio)))
}

// Available is the credit left once other outstanding debt is subtracted.
func Available(limit, outstanding decimal.Decimal) decimal.Decimal {
	return money.NonNegative(limit.Sub(outstanding))
}
