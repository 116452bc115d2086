package enums

import "fmt"

// LoanStatus tracks where a loan sits in its lifecycle.
type LoanStatus string

const (
	LoanStatusPending        LoanStatus = "PENDING"
	LoanStatusApproved       LoanStatus = "APPROVED"
	LoanStatusPaymentPending LoanStatus = "PAYMENT_PENDING"
	LoanStatusOverdue        LoanStatus = "OVERDUE"
	LoanStatusPaid           LoanStatus = "PAID"
	LoanStatusRejected       LoanStatus = "REJECTED"
	LoanStatusCancelled      LoanStatus = "CANCELLED"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusApproved,
	LoanStatusPaymentPending,
	LoanStatusOverdue,
	LoanStatusPaid,
	LoanStatusRejected,
	LoanStatusCancelled,
}

// OutstandingLoanStatuses are the statuses whose remaining debt still counts
// against a borrower's credit limit.
var OutstandingLoanStatuses = []LoanStatus{
	LoanStatusApproved,
	LoanStatusPaymentPending,
	LoanStatusOverdue,
}

// IsValid reports whether the value is a known LoanStatus.
func (s LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}

// InstallmentSource records what settled a loan installment.
type InstallmentSource string

const (
	InstallmentSourcePayment     InstallmentSource = "payment"
	InstallmentSourceLiquidation InstallmentSource = "liquidation"
	InstallmentSourceFGC         InstallmentSource = "fgc"
)

// IsValid reports whether the value is a known InstallmentSource.
func (s InstallmentSource) IsValid() bool {
	switch s {
	case InstallmentSourcePayment, InstallmentSourceLiquidation, InstallmentSourceFGC:
		return true
	default:
		return false
	}
}
