// Package quotas manages the capital units members hold.
package quotas

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// Repository persists quota rows. Purchase inserts and liquidation deletes are
// the only mutations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Issue(ctx context.Context, ownerID uuid.UUID, count int, unitPrice decimal.Decimal) ([]models.Quota, error)
	LockActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Quota, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	ActiveValue(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a quota repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Issue(ctx context.Context, ownerID uuid.UUID, count int, unitPrice decimal.Decimal) ([]models.Quota, error) {
	if count <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quota count must be positive")
	}
	if !unitPrice.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quota price must be positive")
	}
	now := time.Now().UTC()
	rows := make([]models.Quota, count)
	for i := range rows {
		rows[i] = models.Quota{
			OwnerID:       ownerID,
			PurchasePrice: unitPrice,
			CurrentValue:  unitPrice,
			Status:        enums.QuotaStatusActive,
			CreatedAt:     now,
		}
	}
	if err := r.base.DB(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LockActiveByOwner locks every active quota of owner, oldest first.
func (r *repository) LockActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Quota, error) {
	var rows []models.Quota
	if err := r.base.ForUpdate(ctx).
		Where("owner_id = ? AND status = ?", ownerID, enums.QuotaStatusActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.base.DB(ctx).Where("id IN ?", ids).Delete(&models.Quota{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ActiveValue totals the current value of owner's active quotas.
func (r *repository) ActiveValue(ctx context.Context, ownerID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := r.base.DB(ctx).
		Model(&models.Quota{}).
		Select("COALESCE(SUM(current_value), 0)").
		Where("owner_id = ? AND status = ?", ownerID, enums.QuotaStatusActive).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}
