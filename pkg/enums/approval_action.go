package enums

import (
	"fmt"
	"strings"
)

// ApprovalAction is the decision an operator takes on a pending record.
type ApprovalAction string

const (
	// ApprovalActionApprove applies the record's money movement.
	ApprovalActionApprove ApprovalAction = "APPROVE"
	// ApprovalActionReject compensates and closes the record.
	ApprovalActionReject ApprovalAction = "REJECT"
)

// IsValid reports whether the value is a known ApprovalAction.
func (a ApprovalAction) IsValid() bool {
	return a == ApprovalActionApprove || a == ApprovalActionReject
}

// ParseApprovalAction converts raw input (case-insensitive) into an ApprovalAction.
func ParseApprovalAction(value string) (ApprovalAction, error) {
	action := ApprovalAction(strings.ToUpper(strings.TrimSpace(value)))
	if !action.IsValid() {
		return "", fmt.Errorf("invalid approval action %q", value)
	}
	return action, nil
}
