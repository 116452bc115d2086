package enums

// MarketOrderStatus tracks a marketplace order between members.
type MarketOrderStatus string

const (
	MarketOrderStatusPendingPayment MarketOrderStatus = "PENDING_PAYMENT"
	MarketOrderStatusPaid           MarketOrderStatus = "PAID"
	MarketOrderStatusCancelled      MarketOrderStatus = "CANCELLED"
)

// IsValid reports whether the value is a known MarketOrderStatus.
func (s MarketOrderStatus) IsValid() bool {
	switch s {
	case MarketOrderStatusPendingPayment, MarketOrderStatusPaid, MarketOrderStatusCancelled:
		return true
	default:
		return false
	}
}
