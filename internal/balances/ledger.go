// Package balances owns member cash balances and scores.
package balances

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/money"
)

// Ledger reads and mutates member balances. Mutations assume the caller holds
// the row lock taken by Lock within the same scope.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	Lock(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error
	AdjustScore(ctx context.Context, userID uuid.UUID, delta int) error
	ResetScore(ctx context.Context, userID uuid.UUID) error
	SumBalances(ctx context.Context) (decimal.Decimal, error)
	SetMembershipTier(ctx context.Context, userID uuid.UUID, tier enums.MembershipTier) error
}

type ledger struct {
	base repo.Base
}

// NewLedger returns a balance ledger bound to the provided database.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{base: repo.NewBase(db)}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{base: l.base.Bind(tx)}
}

func (l *ledger) Lock(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := l.base.ForUpdate(ctx).Where("id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "user %s not found", userID)
		}
		return nil, err
	}
	return &user, nil
}

func (l *ledger) Get(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := l.base.DB(ctx).Where("id = ?", userID).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "user %s not found", userID)
		}
		return nil, err
	}
	return &user, nil
}

func (l *ledger) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	amount = money.Round(amount)
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit amount must not be negative")
	}
	if amount.IsZero() {
		return nil
	}
	res := l.base.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "user %s not found", userID)
	}
	return nil
}

// Debit subtracts amount only when the balance covers it. The guard lives in
// the UPDATE itself so no read-then-write window exists.
func (l *ledger) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) error {
	amount = money.Round(amount)
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "debit amount must not be negative")
	}
	if amount.IsZero() {
		return nil
	}
	res := l.base.DB(ctx).
		Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientFunds, "balance does not cover %s", amount.StringFixed(2)).
			WithDetails(map[string]any{"user_id": userID.String(), "amount": amount.StringFixed(2)})
	}
	return nil
}

// AdjustScore applies delta and clamps the result at zero.
func (l *ledger) AdjustScore(ctx context.Context, userID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	return l.base.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("score", gorm.Expr("CASE WHEN score + ? < 0 THEN 0 ELSE score + ? END", delta, delta)).Error
}

func (l *ledger) ResetScore(ctx context.Context, userID uuid.UUID) error {
	return l.base.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("score", 0).Error
}

// SumBalances totals every member balance, the club's outstanding liability.
func (l *ledger) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := l.base.DB(ctx).
		Model(&models.User{}).
		Select("COALESCE(SUM(balance), 0)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func (l *ledger) SetMembershipTier(ctx context.Context, userID uuid.UUID, tier enums.MembershipTier) error {
	if !tier.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid membership tier %q", tier)
	}
	res := l.base.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("membership_tier", tier)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "user %s not found", userID)
	}
	return nil
}
