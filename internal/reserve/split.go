package reserve

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/money"
)

// Shares are the fixed fractions of every retained fee routed to each bucket.
type Shares struct {
	Tax         decimal.Decimal
	Operational decimal.Decimal
	Owner       decimal.Decimal
	Investment  decimal.Decimal
}

// SharesFromConfig reads the configured fee shares.
func SharesFromConfig(cfg config.LedgerConfig) Shares {
	return Shares{
		Tax:         cfg.TaxShare,
		Operational: cfg.OperationalShare,
		Owner:       cfg.OwnerShare,
		Investment:  cfg.InvestmentShare,
	}
}

// Validate requires non-negative shares that add up to exactly one.
func (s Shares) Validate() error {
	for name, share := range map[string]decimal.Decimal{
		"tax":         s.Tax,
		"operational": s.Operational,
		"owner":       s.Owner,
		"investment":  s.Investment,
	} {
		if share.IsNegative() {
			return fmt.Errorf("%s share must not be negative", name)
		}
	}
	sum := money.Sum(s.Tax, s.Operational, s.Owner, s.Investment)
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee shares must sum to 1, got %s", sum.String())
	}
	return nil
}

// FeeSplit is the per-bucket result of distributing one fee.
type FeeSplit struct {
	Tax         decimal.Decimal `json:"tax"`
	Operational decimal.Decimal `json:"operational"`
	Owner       decimal.Decimal `json:"owner"`
	Investment  decimal.Decimal `json:"investment"`
}

// Total adds the four buckets back together.
func (f FeeSplit) Total() decimal.Decimal {
	return money.Sum(f.Tax, f.Operational, f.Owner, f.Investment)
}

// Split distributes amount across the buckets at currency precision. The
// investment bucket absorbs the rounding remainder so the parts always add up
// to the rounded amount. Non-positive amounts split to zero.
func (s Shares) Split(amount decimal.Decimal) FeeSplit {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return FeeSplit{Tax: decimal.Zero, Operational: decimal.Zero, Owner: decimal.Zero, Investment: decimal.Zero}
	}
	tax := money.Round(amount.Mul(s.Tax))
	operational := money.Round(amount.Mul(s.Operational))
	owner := money.Round(amount.Mul(s.Owner))
	return FeeSplit{
		Tax:         tax,
		Operational: operational,
		Owner:       owner,
		Investment:  amount.Sub(tax).Sub(operational).Sub(owner),
	}
}
