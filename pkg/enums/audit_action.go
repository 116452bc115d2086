package enums

// AuditAction names a state-changing admin or system action.
type AuditAction string

const (
	AuditActionTransactionApproved AuditAction = "TRANSACTION_APPROVED"
	AuditActionTransactionRejected AuditAction = "TRANSACTION_REJECTED"
	AuditActionLoanApproved        AuditAction = "LOAN_APPROVED"
	AuditActionLoanRejected        AuditAction = "LOAN_REJECTED"
	AuditActionLoanLiquidated      AuditAction = "LOAN_LIQUIDATED"
	AuditActionLoanFGCCovered      AuditAction = "LOAN_FGC_COVERED"
	AuditActionPayoutConfirmed     AuditAction = "PAYOUT_CONFIRMED"
)

var validAuditActions = []AuditAction{
	AuditActionTransactionApproved,
	AuditActionTransactionRejected,
	AuditActionLoanApproved,
	AuditActionLoanRejected,
	AuditActionLoanLiquidated,
	AuditActionLoanFGCCovered,
	AuditActionPayoutConfirmed,
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}
