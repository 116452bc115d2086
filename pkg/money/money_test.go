package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestRound(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.005", "1.01"},
		{"2.004", "2"},
		{"-1.005", "-1.01"},
		{"970", "970"},
	}
	for _, tt := range tests {
		if got := Round(d(tt.in)); !got.Equal(d(tt.want)) {
			t.Fatalf("Round(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCoversWithinTolerance(t *testing.T) {
	if !Covers(d("99.99"), d("100"), d("0.01")) {
		t.Fatalf("99.99 should cover 100 within 0.01")
	}
	if Covers(d("99.98"), d("100"), d("0.01")) {
		t.Fatalf("99.98 should not cover 100 within 0.01")
	}
}

func TestMinMaxNonNegative(t *testing.T) {
	if !Min(d("3"), d("5")).Equal(d("3")) {
		t.Fatalf("unexpected min")
	}
	if !Max(d("3"), d("5")).Equal(d("5")) {
		t.Fatalf("unexpected max")
	}
	if !NonNegative(d("-2")).IsZero() {
		t.Fatalf("negative amounts should clamp to zero")
	}
	if !Sum(d("1.10"), d("2.20"), d("3.30")).Equal(d("6.6")) {
		t.Fatalf("unexpected sum")
	}
	if !Equal(d("1.001"), d("1")) {
		t.Fatalf("amounts equal at cent precision should compare equal")
	}
}
