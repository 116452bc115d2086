package quotas

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/money"
)

// Selection is the set of whole quotas picked to cover a debt.
type Selection struct {
	Quotas []models.Quota
	Value  decimal.Decimal
}

// IDs returns the ids of the selected quotas.
func (s Selection) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.Quotas))
	for _, q := range s.Quotas {
		ids = append(ids, q.ID)
	}
	return ids
}

// Covered is the part of debt the selection pays off.
func (s Selection) Covered(debt decimal.Decimal) decimal.Decimal {
	return money.Min(s.Value, money.NonNegative(debt))
}

// SelectForDebt walks candidates in order and takes whole quotas until their
// combined value reaches debt or the candidates run out. The last quota may
// overshoot; quotas are never split.
func SelectForDebt(candidates []models.Quota, debt decimal.Decimal) Selection {
	sel := Selection{Value: decimal.Zero}
	if !debt.IsPositive() {
		return sel
	}
	for _, q := range candidates {
		if sel.Value.GreaterThanOrEqual(debt) {
			break
		}
		sel.Quotas = append(sel.Quotas, q)
		sel.Value = sel.Value.Add(q.CurrentValue)
	}
	return sel
}
