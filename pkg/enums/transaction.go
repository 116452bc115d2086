package enums

import "fmt"

// TransactionType tags which variant of ledger entry a transaction row carries.
type TransactionType string

const (
	TransactionTypeBuyQuota          TransactionType = "BUY_QUOTA"
	TransactionTypeLoanPayment       TransactionType = "LOAN_PAYMENT"
	TransactionTypeWithdrawal        TransactionType = "WITHDRAWAL"
	TransactionTypeDeposit           TransactionType = "DEPOSIT"
	TransactionTypeMembershipUpgrade TransactionType = "MEMBERSHIP_UPGRADE"
	TransactionTypeMarketPurchase    TransactionType = "MARKET_PURCHASE"
	TransactionTypeMarketBoost       TransactionType = "MARKET_BOOST"
	TransactionTypeSystemLiquidation TransactionType = "SYSTEM_LIQUIDATION"
	TransactionTypeSystemAdjustment  TransactionType = "SYSTEM_ADJUSTMENT"
	TransactionTypeReferralBonus     TransactionType = "REFERRAL_BONUS"
	TransactionTypeLoanApproved      TransactionType = "LOAN_APPROVED"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeBuyQuota,
	TransactionTypeLoanPayment,
	TransactionTypeWithdrawal,
	TransactionTypeDeposit,
	TransactionTypeMembershipUpgrade,
	TransactionTypeMarketPurchase,
	TransactionTypeMarketBoost,
	TransactionTypeSystemLiquidation,
	TransactionTypeSystemAdjustment,
	TransactionTypeReferralBonus,
	TransactionTypeLoanApproved,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsSystemGenerated reports whether rows of this type are written by the ledger
// itself and never go through request-side approval.
func (t TransactionType) IsSystemGenerated() bool {
	switch t {
	case TransactionTypeSystemLiquidation, TransactionTypeSystemAdjustment, TransactionTypeLoanApproved:
		return true
	default:
		return false
	}
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus tracks the approval lifecycle of a transaction row.
type TransactionStatus string

const (
	TransactionStatusPending             TransactionStatus = "PENDING"
	TransactionStatusPendingConfirmation TransactionStatus = "PENDING_CONFIRMATION"
	TransactionStatusApproved            TransactionStatus = "APPROVED"
	TransactionStatusRejected            TransactionStatus = "REJECTED"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusPendingConfirmation,
	TransactionStatusApproved,
	TransactionStatusRejected,
}

// ActionableTransactionStatuses lists the statuses an approval may still act on.
var ActionableTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusPendingConfirmation,
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusApproved || s == TransactionStatusRejected
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}

// PayoutStatus tracks the manual reconciliation of money leaving the club.
type PayoutStatus string

const (
	PayoutStatusNone           PayoutStatus = "NONE"
	PayoutStatusPendingPayment PayoutStatus = "PENDING_PAYMENT"
	PayoutStatusPaid           PayoutStatus = "PAID"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusNone,
	PayoutStatusPendingPayment,
	PayoutStatusPaid,
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}
