// Package gateway prices the processor fees the club absorbs on PIX and card payments.
package gateway

import (
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/enums"
	"github.com/quotaclub/settlement/pkg/money"
)

// Calculator computes gateway costs from the configured rates.
type Calculator struct {
	cfg config.GatewayConfig
}

// NewCalculator returns a calculator for the given pricing.
func NewCalculator(cfg config.GatewayConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Cost returns rate × amount + fixed for the payment method, rounded. Wallet
// payments and non-positive amounts cost nothing. The cost never exceeds amount.
func (c *Calculator) Cost(amount decimal.Decimal, method enums.PaymentMethod) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	var rate, fixed decimal.Decimal
	switch method {
	case enums.PaymentMethodPix:
		rate, fixed = c.cfg.PixRate, c.cfg.PixFixed
	case enums.PaymentMethodCard:
		rate, fixed = c.cfg.CardRate, c.cfg.CardFixed
	default:
		return decimal.Zero
	}
	cost := money.Round(amount.Mul(rate).Add(fixed))
	return money.Min(money.NonNegative(cost), money.Round(amount))
}
