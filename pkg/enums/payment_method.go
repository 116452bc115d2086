package enums

import "fmt"

// PaymentMethod describes how a member funded a request.
type PaymentMethod string

const (
	PaymentMethodPix     PaymentMethod = "PIX"
	PaymentMethodCard    PaymentMethod = "CARD"
	PaymentMethodBalance PaymentMethod = "BALANCE"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodPix,
	PaymentMethodCard,
	PaymentMethodBalance,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsExternal reports whether money arrived through a payment processor.
func (p PaymentMethod) IsExternal() bool {
	return p == PaymentMethodPix || p == PaymentMethodCard
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
