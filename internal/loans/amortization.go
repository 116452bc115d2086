package loans

import (
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/money"
)

// SplitPayment divides a payment into principal and interest in the ratio of
// the loan's outstanding principal to its outstanding repayment. Principal is
// rounded; interest takes the remainder so the parts always sum to amount.
func SplitPayment(loan *models.Loan, amount decimal.Decimal) (principal, interest decimal.Decimal) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	if !loan.TotalRepayment.IsPositive() {
		return amount, decimal.Zero
	}
	principal = money.Round(amount.Mul(loan.Amount).Div(loan.TotalRepayment))
	principal = money.Min(money.NonNegative(principal), amount)
	return principal, amount.Sub(principal)
}

// Debt is what the borrower still owes given the installments paid so far.
func Debt(loan *models.Loan, paid decimal.Decimal) decimal.Decimal {
	return money.NonNegative(money.Round(loan.OriginalTotalRepayment.Sub(paid)))
}

// IsPaidOff reports whether paid reaches the original repayment within tolerance.
func IsPaidOff(loan *models.Loan, paid, tolerance decimal.Decimal) bool {
	return money.Covers(paid, loan.OriginalTotalRepayment, tolerance)
}

// Amortize reduces the outstanding principal and repayment after an installment.
func Amortize(loan *models.Loan, principal, installment decimal.Decimal) {
	loan.Amount = money.NonNegative(money.Round(loan.Amount.Sub(principal)))
	loan.TotalRepayment = money.NonNegative(money.Round(loan.TotalRepayment.Sub(installment)))
}

// Settle zeroes the outstanding figures of a loan that is paid off.
func Settle(loan *models.Loan) {
	loan.Amount = decimal.Zero
	loan.TotalRepayment = decimal.Zero
}
