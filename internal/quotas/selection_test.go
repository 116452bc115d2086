package quotas

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/db/models"
)

func quotasWorth(values ...string) []models.Quota {
	out := make([]models.Quota, 0, len(values))
	for _, v := range values {
		out = append(out, models.Quota{ID: uuid.New(), CurrentValue: decimal.RequireFromString(v)})
	}
	return out
}

func TestSelectForDebt(t *testing.T) {
	cases := []struct {
		name       string
		candidates []models.Quota
		debt       string
		wantCount  int
		wantValue  string
		wantCover  string
	}{
		{name: "exact", candidates: quotasWorth("50", "50", "50"), debt: "100", wantCount: 2, wantValue: "100", wantCover: "100"},
		{name: "overshoot whole quota", candidates: quotasWorth("200"), debt: "150", wantCount: 1, wantValue: "200", wantCover: "150"},
		{name: "shortfall", candidates: quotasWorth("50"), debt: "200", wantCount: 1, wantValue: "50", wantCover: "50"},
		{name: "no quotas", candidates: nil, debt: "10", wantCount: 0, wantValue: "0", wantCover: "0"},
		{name: "no debt", candidates: quotasWorth("50"), debt: "0", wantCount: 0, wantValue: "0", wantCover: "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			debt := decimal.RequireFromString(tc.debt)
			sel := SelectForDebt(tc.candidates, debt)
			if len(sel.Quotas) != tc.wantCount {
				t.Fatalf("expected %d quotas, got %d", tc.wantCount, len(sel.Quotas))
			}
			if !sel.Value.Equal(decimal.RequireFromString(tc.wantValue)) {
				t.Fatalf("expected value %s, got %s", tc.wantValue, sel.Value)
			}
			if !sel.Covered(debt).Equal(decimal.RequireFromString(tc.wantCover)) {
				t.Fatalf("expected cover %s, got %s", tc.wantCover, sel.Covered(debt))
			}
			if len(sel.IDs()) != tc.wantCount {
				t.Fatalf("ids out of sync with quotas")
			}
		})
	}
}

func TestSelectForDebtKeepsOrder(t *testing.T) {
	candidates := quotasWorth("10", "20", "30")
	sel := SelectForDebt(candidates, decimal.RequireFromString("25"))
	if len(sel.Quotas) != 2 || sel.Quotas[0].ID != candidates[0].ID || sel.Quotas[1].ID != candidates[1].ID {
		t.Fatalf("expected the two oldest quotas, got %+v", sel.Quotas)
	}
}
