package gateway

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/enums"
)

func TestCalculator_Cost(t *testing.T) {
	calc := NewCalculator(config.GatewayConfig{
		PixRate:   decimal.RequireFromString("0.0099"),
		PixFixed:  decimal.Zero,
		CardRate:  decimal.RequireFromString("0.0498"),
		CardFixed: decimal.RequireFromString("0.40"),
	})

	cases := []struct {
		name   string
		amount string
		method enums.PaymentMethod
		want   string
	}{
		{"pix", "100", enums.PaymentMethodPix, "0.99"},
		{"pix rounds", "50", enums.PaymentMethodPix, "0.5"},
		{"card", "100", enums.PaymentMethodCard, "5.38"},
		{"balance is free", "100", enums.PaymentMethodBalance, "0"},
		{"unknown method", "100", enums.PaymentMethod("CASH"), "0"},
		{"zero amount", "0", enums.PaymentMethodCard, "0"},
		{"capped at amount", "0.30", enums.PaymentMethodCard, "0.30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.Cost(decimal.RequireFromString(tc.amount), tc.method)
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("Cost(%s, %s) = %s, want %s", tc.amount, tc.method, got, tc.want)
			}
		})
	}
}
