package reserve

import (
	"context"

	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
)

// Repository loads and persists the singleton reserve row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Lock(ctx context.Context) (*Account, error)
	Get(ctx context.Context) (*Account, error)
	Save(ctx context.Context, acct *Account) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a reserve repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

// Lock reads the reserve row with an exclusive lock held until the scope ends.
func (r *repository) Lock(ctx context.Context) (*Account, error) {
	var row models.ReserveAccount
	if err := r.base.ForUpdate(ctx).
		Where("id = ?", models.ReserveAccountID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return NewAccount(&row), nil
}

// Get reads the reserve row without locking, for inspection only.
func (r *repository) Get(ctx context.Context) (*Account, error) {
	var row models.ReserveAccount
	if err := r.base.DB(ctx).
		Where("id = ?", models.ReserveAccountID).
		Take(&row).Error; err != nil {
		return nil, err
	}
	return NewAccount(&row), nil
}

func (r *repository) Save(ctx context.Context, acct *Account) error {
	row := acct.row
	return r.base.DB(ctx).
		Model(&models.ReserveAccount{}).
		Where("id = ?", models.ReserveAccountID).
		Updates(map[string]any{
			"operating_cash":        row.OperatingCash,
			"profit_pool":           row.ProfitPool,
			"tax_reserve":           row.TaxReserve,
			"operational_reserve":   row.OperationalReserve,
			"owner_profit":          row.OwnerProfit,
			"investment_reserve":    row.InvestmentReserve,
			"credit_guarantee_fund": row.CreditGuaranteeFund,
			"total_gateway_costs":   row.TotalGatewayCosts,
			"total_manual_costs":    row.TotalManualCosts,
		}).Error
}
