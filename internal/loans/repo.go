// Package loans governs loan approval, amortization and the bookkeeping the
// sweeps rely on.
package loans

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// Repository manages persistence for loans and their installments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	LockInStatus(ctx context.Context, id uuid.UUID, statuses ...enums.LoanStatus) (*models.Loan, error)
	LockOverdue(ctx context.Context, id uuid.UUID, statuses []enums.LoanStatus, cutoff time.Time) (*models.Loan, error)
	Save(ctx context.Context, loan *models.Loan) error
	AppendInstallment(ctx context.Context, inst *models.LoanInstallment) error
	Installments(ctx context.Context, loanID uuid.UUID) ([]models.LoanInstallment, error)
	PaidToDate(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
	OutstandingDebt(ctx context.Context, borrowerID, excludeLoanID uuid.UUID) (decimal.Decimal, error)
	ListDueBefore(ctx context.Context, statuses []enums.LoanStatus, cutoff time.Time) ([]uuid.UUID, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns a loan repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := r.base.DB(ctx).Where("id = ?", id).Take(&loan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "loan %s not found", id)
		}
		return nil, err
	}
	return &loan, nil
}

// LockInStatus locks the loan only while it is in one of statuses. A miss is
// reported as already processed: the row lock is the precondition check.
func (r *repository) LockInStatus(ctx context.Context, id uuid.UUID, statuses ...enums.LoanStatus) (*models.Loan, error) {
	var loan models.Loan
	err := r.base.ForUpdate(ctx).
		Where("id = ? AND status IN ?", id, statuses).
		Take(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeAlreadyProcessed, "loan %s is not in an actionable status", id).
				WithDetails(map[string]any{"loan_id": id.String(), "expected": statuses})
		}
		return nil, err
	}
	return &loan, nil
}

// LockOverdue re-checks the sweep predicate under the row lock.
func (r *repository) LockOverdue(ctx context.Context, id uuid.UUID, statuses []enums.LoanStatus, cutoff time.Time) (*models.Loan, error) {
	var loan models.Loan
	err := r.base.ForUpdate(ctx).
		Where("id = ? AND status IN ? AND due_date IS NOT NULL AND due_date < ?", id, statuses, cutoff).
		Take(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeAlreadyProcessed, "loan %s no longer qualifies", id)
		}
		return nil, err
	}
	return &loan, nil
}

func (r *repository) Save(ctx context.Context, loan *models.Loan) error {
	return r.base.DB(ctx).
		Model(loan).
		Select("amount", "total_repayment", "status", "due_date", "approved_at", "metadata", "updated_at").
		Updates(loan).Error
}

func (r *repository) AppendInstallment(ctx context.Context, inst *models.LoanInstallment) error {
	if !inst.Source.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeInternal, "invalid installment source %q", inst.Source)
	}
	return r.base.DB(ctx).Create(inst).Error
}

func (r *repository) Installments(ctx context.Context, loanID uuid.UUID) ([]models.LoanInstallment, error) {
	var rows []models.LoanInstallment
	if err := r.base.DB(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PaidToDate sums every installment recorded against the loan.
func (r *repository) PaidToDate(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := r.base.DB(ctx).
		Model(&models.LoanInstallment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("loan_id = ?", loanID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// OutstandingDebt is the remaining debt of the borrower's other live loans.
func (r *repository) OutstandingDebt(ctx context.Context, borrowerID, excludeLoanID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := r.base.DB(ctx).Raw(`
		SELECT COALESCE(SUM(l.original_total_repayment - COALESCE(
			(SELECT SUM(i.amount) FROM loan_installments i WHERE i.loan_id = l.id), 0)), 0)
		FROM loans l
		WHERE l.borrower_id = ? AND l.status IN ? AND l.id <> ?`,
		borrowerID, enums.OutstandingLoanStatuses, excludeLoanID).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid || total.Decimal.IsNegative() {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// ListDueBefore returns ids of loans in statuses whose due date is before cutoff,
// earliest due first. Rows are not locked; each sweep step re-locks its loan.
func (r *repository) ListDueBefore(ctx context.Context, statuses []enums.LoanStatus, cutoff time.Time) ([]uuid.UUID, error) {
	var rows []models.Loan
	if err := r.base.DB(ctx).
		Select("id").
		Where("status IN ? AND due_date IS NOT NULL AND due_date < ?", statuses, cutoff).
		Order("due_date ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
