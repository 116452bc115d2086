// Package liquidation seizes the quotas that back a defaulted loan.
package liquidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/balances"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/quotas"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/money"
)

var eligibleStatuses = []enums.LoanStatus{enums.LoanStatusApproved}

// Params wires the collaborators a Processor needs.
type Params struct {
	Loans    loans.Repository
	Reserve  reserve.Repository
	Balances balances.Ledger
	Quotas   quotas.Repository
	Ledger   ledger.Service
	Audit    audit.Recorder
	Config   config.LedgerConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// Processor liquidates one loan per call.
type Processor struct {
	loans    loans.Repository
	reserve  reserve.Repository
	balances balances.Ledger
	quotas   quotas.Repository
	ledger   ledger.Service
	audit    audit.Recorder
	cfg      config.LedgerConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewProcessor validates params and returns a Processor.
func NewProcessor(params Params) (*Processor, error) {
	if params.Loans == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if params.Reserve == nil {
		return nil, fmt.Errorf("reserve repository required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance ledger required")
	}
	if params.Quotas == nil {
		return nil, fmt.Errorf("quota repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Processor{
		loans:    params.Loans,
		reserve:  params.Reserve,
		balances: params.Balances,
		quotas:   params.Quotas,
		ledger:   params.Ledger,
		audit:    params.Audit,
		cfg:      params.Config,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Result describes what liquidating one loan did.
type Result struct {
	LoanID          uuid.UUID               `json:"loan_id"`
	Skipped         bool                    `json:"skipped"`
	Debt            decimal.Decimal         `json:"debt"`
	Recovered       decimal.Decimal         `json:"recovered"`
	QuotaValue      decimal.Decimal         `json:"quota_value"`
	Surplus         decimal.Decimal         `json:"surplus"`
	QuotasDeleted   int                     `json:"quotas_deleted"`
	GuarantorUsed   bool                    `json:"guarantor_used"`
	GuarantorAmount decimal.Decimal         `json:"guarantor_amount"`
	Status          enums.LoanStatus        `json:"status"`
	Notices         []notifications.Message `json:"-"`
}

func (p *Processor) cutoff() time.Time {
	return p.now().UTC().Add(-time.Duration(p.cfg.LiquidationGraceDays) * 24 * time.Hour)
}

// Candidates lists approved loans past the grace period, earliest due first.
func (p *Processor) Candidates(ctx context.Context) ([]uuid.UUID, error) {
	return p.loans.ListDueBefore(ctx, eligibleStatuses, p.cutoff())
}

// Liquidate re-checks the loan under its row lock and seizes whole quotas,
// borrower first, guarantor second, until the debt is covered.
func (p *Processor) Liquidate(ctx context.Context, tx *gorm.DB, loanID uuid.UUID) (*Result, error) {
	loansRepo := p.loans.WithTx(tx)
	loan, err := loansRepo.LockOverdue(ctx, loanID, eligibleStatuses, p.cutoff())
	if err != nil {
		return nil, err
	}
	ctx = p.logg.WithLoanID(ctx, loan.ID.String())

	paid, err := loansRepo.PaidToDate(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	debt := loans.Debt(loan, paid)
	if !debt.IsPositive() {
		p.logg.Info(ctx, "overdue loan has no debt left, skipping liquidation")
		return &Result{LoanID: loan.ID, Skipped: true, Debt: debt, Status: loan.Status}, nil
	}

	meta, err := loans.DecodeMetadata(loan.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loan metadata")
	}

	reserveRepo := p.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return nil, err
	}

	quotaRepo := p.quotas.WithTx(tx)
	held, err := quotaRepo.LockActiveByOwner(ctx, loan.BorrowerID)
	if err != nil {
		return nil, err
	}
	own := quotas.SelectForDebt(held, debt)
	remaining := money.NonNegative(debt.Sub(own.Value))

	var backing quotas.Selection
	var guarantorID *uuid.UUID
	if remaining.IsPositive() && meta.GuarantorID != nil && *meta.GuarantorID != loan.BorrowerID {
		guarantorID = meta.GuarantorID
		guarantorQuotas, err := quotaRepo.LockActiveByOwner(ctx, *guarantorID)
		if err != nil {
			return nil, err
		}
		backing = quotas.SelectForDebt(guarantorQuotas, remaining)
	}
	guarantorUsed := len(backing.Quotas) > 0

	ids := append(own.IDs(), backing.IDs()...)
	deleted, err := quotaRepo.DeleteByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if int(deleted) != len(ids) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "expected to delete %d quotas, deleted %d", len(ids), deleted)
	}

	quotaValue := own.Value.Add(backing.Value)
	if err := acct.AdjustOperatingCash(quotaValue, reserve.ReasonLiquidationRecovery); err != nil {
		return nil, err
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return nil, err
	}

	recovered := money.Min(quotaValue, debt)
	surplus := quotaValue.Sub(recovered)
	guarantorAmount := backing.Covered(remaining)
	if recovered.IsPositive() {
		if err := loansRepo.AppendInstallment(ctx, &models.LoanInstallment{
			LoanID: loan.ID,
			Amount: recovered,
			Source: enums.InstallmentSourceLiquidation,
		}); err != nil {
			return nil, err
		}
	}

	now := p.now().UTC()
	if loans.IsPaidOff(loan, paid.Add(recovered), p.cfg.PaidTolerance) {
		loans.Settle(loan)
		loan.Status = enums.LoanStatusPaid
	} else {
		principal, _ := loans.SplitPayment(loan, recovered)
		loans.Amortize(loan, principal, recovered)
		loan.Status = enums.LoanStatusOverdue
	}
	meta.Liquidation = &loans.LiquidationStamp{
		Amount:          recovered,
		QuotaValue:      quotaValue,
		Surplus:         surplus,
		QuotasDeleted:   len(ids),
		GuarantorUsed:   guarantorUsed,
		GuarantorAmount: guarantorAmount,
		LiquidatedAt:    now,
	}
	if loan.Metadata, err = meta.Encode(); err != nil {
		return nil, err
	}
	if err := loansRepo.Save(ctx, loan); err != nil {
		return nil, err
	}

	members := p.balances.WithTx(tx)
	if _, err := members.Lock(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}
	if err := members.ResetScore(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}

	result := &Result{
		LoanID:          loan.ID,
		Debt:            debt,
		Recovered:       recovered,
		QuotaValue:      quotaValue,
		Surplus:         surplus,
		QuotasDeleted:   len(ids),
		GuarantorUsed:   guarantorUsed,
		GuarantorAmount: guarantorAmount,
		Status:          loan.Status,
	}

	ledgerSvc := p.ledger.WithTx(tx)
	if guarantorUsed {
		if _, err := ledgerSvc.Record(ctx, ledger.RecordInput{
			OwnerID:     *guarantorID,
			Type:        enums.TransactionTypeSystemLiquidation,
			Amount:      backing.Value,
			Description: fmt.Sprintf("guarantor collateral seized for loan %s", loan.ID),
			Metadata: map[string]any{
				"loanId":        loan.ID,
				"borrowerId":    loan.BorrowerID,
				"covered":       guarantorAmount,
				"quotasDeleted": len(backing.Quotas),
				"role":          "guarantor",
			},
		}); err != nil {
			return nil, err
		}
		result.Notices = append(result.Notices, notifications.Message{
			UserID: *guarantorID,
			Type:   enums.NotificationTypeLiquidation,
			Title:  "Guarantee called",
			Body: fmt.Sprintf("%d of your quotas worth %s were liquidated to cover a loan you guaranteed.",
				len(backing.Quotas), backing.Value.StringFixed(2)),
		})
	}
	if _, err := ledgerSvc.Record(ctx, ledger.RecordInput{
		OwnerID:     loan.BorrowerID,
		Type:        enums.TransactionTypeSystemLiquidation,
		Amount:      own.Value,
		Description: fmt.Sprintf("collateral liquidated for loan %s", loan.ID),
		Metadata: map[string]any{
			"loanId":        loan.ID,
			"debt":          debt,
			"recovered":     recovered,
			"quotasDeleted": len(own.Quotas),
			"guarantorUsed": guarantorUsed,
			"role":          "borrower",
		},
	}); err != nil {
		return nil, err
	}
	result.Notices = append(result.Notices, notifications.Message{
		UserID: loan.BorrowerID,
		Type:   enums.NotificationTypeLiquidation,
		Title:  "Loan liquidated",
		Body: fmt.Sprintf("Your overdue loan was settled with %s of collateral. Loan status: %s.",
			recovered.StringFixed(2), loan.Status),
	})

	if _, err := p.audit.WithTx(tx).Record(ctx, audit.Entry{
		Action:     enums.AuditActionLoanLiquidated,
		EntityType: audit.EntityLoan,
		EntityID:   loan.ID,
		Old:        map[string]any{"status": enums.LoanStatusApproved, "debt": debt},
		New: map[string]any{
			"status":        loan.Status,
			"recovered":     recovered,
			"quotaValue":    quotaValue,
			"guarantorUsed": guarantorUsed,
		},
	}); err != nil {
		return nil, err
	}

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"debt":           debt.StringFixed(2),
		"recovered":      recovered.StringFixed(2),
		"quotas_deleted": len(ids),
		"guarantor_used": guarantorUsed,
		"loan_status":    string(loan.Status),
	}), "loan liquidated")
	return result, nil
}
