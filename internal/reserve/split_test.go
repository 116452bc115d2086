package reserve

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/config"
)

func quarterShares() Shares {
	return SharesFromConfig(config.DefaultLedgerConfig())
}

func TestSplitAddsUpToAmount(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		shares Shares
	}{
		{name: "even", amount: "100", shares: quarterShares()},
		{name: "odd cents", amount: "0.03", shares: quarterShares()},
		{name: "withdrawal min fee", amount: "5", shares: quarterShares()},
		{name: "three decimals", amount: "10.005", shares: quarterShares()},
		{name: "uneven shares", amount: "33.33", shares: Shares{
			Tax:         decimal.RequireFromString("0.3"),
			Operational: decimal.RequireFromString("0.3"),
			Owner:       decimal.RequireFromString("0.3"),
			Investment:  decimal.RequireFromString("0.1"),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			split := tc.shares.Split(amount)
			if !split.Total().Equal(amount.Round(2)) {
				t.Fatalf("split total %s != amount %s", split.Total(), amount.Round(2))
			}
			for _, part := range []decimal.Decimal{split.Tax, split.Operational, split.Owner, split.Investment} {
				if part.IsNegative() {
					t.Fatalf("negative bucket in %+v", split)
				}
			}
		})
	}
}

func TestSplitQuarterValues(t *testing.T) {
	split := quarterShares().Split(decimal.NewFromInt(30))
	want := decimal.RequireFromString("7.5")
	if !split.Tax.Equal(want) || !split.Operational.Equal(want) || !split.Owner.Equal(want) || !split.Investment.Equal(want) {
		t.Fatalf("expected 7.50 per bucket, got %+v", split)
	}
}

func TestSplitNonPositive(t *testing.T) {
	for _, amount := range []string{"0", "-4"} {
		split := quarterShares().Split(decimal.RequireFromString(amount))
		if !split.Total().IsZero() {
			t.Fatalf("expected zero split for %s, got %+v", amount, split)
		}
	}
}

func TestSharesValidate(t *testing.T) {
	if err := quarterShares().Validate(); err != nil {
		t.Fatalf("default shares should validate: %v", err)
	}
	bad := quarterShares()
	bad.Tax = decimal.RequireFromString("0.5")
	if err := bad.Validate(); err == nil {
		t.Fatal("expected sum validation error")
	}
	negative := Shares{
		Tax:         decimal.RequireFromString("-0.25"),
		Operational: decimal.RequireFromString("0.75"),
		Owner:       decimal.RequireFromString("0.25"),
		Investment:  decimal.RequireFromString("0.25"),
	}
	if err := negative.Validate(); err == nil {
		t.Fatal("expected negative share error")
	}
}
