package enums

import "fmt"

// NotificationType categorizes member inbox entries.
type NotificationType string

const (
	NotificationTypeTransaction NotificationType = "transaction"
	NotificationTypeLoan        NotificationType = "loan"
	NotificationTypeLiquidation NotificationType = "liquidation"
	NotificationTypeGuarantee   NotificationType = "guarantee_fund"
	NotificationTypeReferral    NotificationType = "referral"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeTransaction,
	NotificationTypeLoan,
	NotificationTypeLiquidation,
	NotificationTypeGuarantee,
	NotificationTypeReferral,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
