// Package money holds the rounding rules shared by every ledger mutation.
package money

import "github.com/shopspring/decimal"

// Places is the number of decimal places currency amounts are kept at.
const Places = 2

// Epsilon is the smallest representable currency unit.
var Epsilon = decimal.New(1, -Places)

// Round rounds half away from zero to currency precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Min returns the smaller amount.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger amount.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Covers reports whether paid reaches target within tolerance.
func Covers(paid, target, tolerance decimal.Decimal) bool {
	return paid.Add(tolerance).GreaterThanOrEqual(target)
}

// Sum adds all amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Equal compares two amounts at currency precision.
func Equal(a, b decimal.Decimal) bool {
	return Round(a).Equal(Round(b))
}
