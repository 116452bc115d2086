package enums

// QuotaStatus describes a capital unit. Liquidated or resold quotas are removed,
// so ACTIVE is the only persisted value.
type QuotaStatus string

const QuotaStatusActive QuotaStatus = "ACTIVE"

// IsValid reports whether the value is a known QuotaStatus.
func (s QuotaStatus) IsValid() bool {
	return s == QuotaStatusActive
}
