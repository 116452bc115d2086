package enums

import "fmt"

// MembershipTier is the paid plan a member is on.
type MembershipTier string

const (
	MembershipTierFree    MembershipTier = "FREE"
	MembershipTierPro     MembershipTier = "PRO"
	MembershipTierPremium MembershipTier = "PREMIUM"
)

var validMembershipTiers = []MembershipTier{
	MembershipTierFree,
	MembershipTierPro,
	MembershipTierPremium,
}

// IsValid reports whether the value is a known MembershipTier.
func (m MembershipTier) IsValid() bool {
	for _, candidate := range validMembershipTiers {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMembershipTier converts raw input into a MembershipTier.
func ParseMembershipTier(value string) (MembershipTier, error) {
	for _, candidate := range validMembershipTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership tier %q", value)
}
