// Package marketplace flips the marketplace-owned state that must change in the
// same scope as the money paying for it.
package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// Repository updates market orders and listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockOrder(ctx context.Context, id uuid.UUID) (*models.MarketOrder, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.MarketOrder, error)
	BoostListing(ctx context.Context, id uuid.UUID, until time.Time) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a marketplace repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.MarketOrder, error) {
	var order models.MarketOrder
	if err := r.base.ForUpdate(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "market order %s not found", id)
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid moves an order from PENDING_PAYMENT to PAID.
func (r *repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (*models.MarketOrder, error) {
	order, err := r.LockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.MarketOrderStatusPendingPayment {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "market order %s is %s", id, order.Status).
			WithDetails(map[string]any{"order_id": id.String(), "status": order.Status})
	}
	res := r.base.DB(ctx).
		Model(&models.MarketOrder{}).
		Where("id = ? AND status = ?", id, enums.MarketOrderStatusPendingPayment).
		Updates(map[string]any{"status": enums.MarketOrderStatusPaid, "paid_at": paidAt})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "market order %s changed concurrently", id)
	}
	order.Status = enums.MarketOrderStatusPaid
	order.PaidAt = &paidAt
	return order, nil
}

// BoostListing flags a listing as boosted until the given time. An existing
// later boost is kept.
func (r *repository) BoostListing(ctx context.Context, id uuid.UUID, until time.Time) error {
	var listing models.MarketListing
	if err := r.base.ForUpdate(ctx).Where("id = ?", id).Take(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "market listing %s not found", id)
		}
		return err
	}
	if listing.BoostedUntil != nil && listing.BoostedUntil.After(until) {
		until = *listing.BoostedUntil
	}
	return r.base.DB(ctx).
		Model(&models.MarketListing{}).
		Where("id = ?", id).
		Updates(map[string]any{"boosted": true, "boosted_until": until}).Error
}
