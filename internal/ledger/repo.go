package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// Repository manages persistence for transaction rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LockActionable(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LockAwaitingPayout(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	Save(ctx context.Context, txn *models.Transaction) error
	ListPendingByType(ctx context.Context, txnType enums.TransactionType, limit int) ([]models.Transaction, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Transaction, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.base.DB(ctx).Create(txn).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.base.DB(ctx).Where("id = ?", id).Take(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "transaction %s not found", id)
		}
		return nil, err
	}
	return &txn, nil
}

// LockActionable locks the row only while it can still be approved or rejected.
// A miss means another caller already moved it to a terminal status (or it never
// existed); both surface as already processed so effects apply at most once.
func (r *repository) LockActionable(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.base.ForUpdate(ctx).
		Where("id = ? AND status IN ?", id, enums.ActionableTransactionStatuses).
		Take(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeAlreadyProcessed, "transaction %s is not pending", id).
				WithDetails(map[string]any{"transaction_id": id.String()})
		}
		return nil, err
	}
	return &txn, nil
}

// LockAwaitingPayout locks an approved withdrawal whose payout was not yet confirmed.
func (r *repository) LockAwaitingPayout(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.base.ForUpdate(ctx).
		Where("id = ? AND type = ? AND status = ? AND payout_status = ?",
			id, enums.TransactionTypeWithdrawal, enums.TransactionStatusApproved, enums.PayoutStatusPendingPayment).
		Take(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeAlreadyProcessed, "transaction %s has no payout awaiting confirmation", id).
				WithDetails(map[string]any{"transaction_id": id.String()})
		}
		return nil, err
	}
	return &txn, nil
}

func (r *repository) Save(ctx context.Context, txn *models.Transaction) error {
	return r.base.DB(ctx).
		Model(txn).
		Select("status", "payout_status", "processed_at", "metadata", "description", "updated_at").
		Updates(txn).Error
}

// ListPendingByType returns pending rows of one type, oldest first.
func (r *repository) ListPendingByType(ctx context.Context, txnType enums.TransactionType, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	q := r.base.DB(ctx).
		Where("type = ? AND status = ?", txnType, enums.TransactionStatusPending).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.base.DB(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
