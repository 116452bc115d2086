// Package guaranteefund writes off severely delinquent loans against the
// segregated credit guarantee fund. Operating cash never moves here.
package guaranteefund

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/money"
)

// Params wires the collaborators a Processor needs.
type Params struct {
	Loans   loans.Repository
	Reserve reserve.Repository
	Ledger  ledger.Service
	Audit   audit.Recorder
	Config  config.LedgerConfig
	Logger  *logger.Logger
	Now     func() time.Time
}

// Processor covers one delinquent loan per call.
type Processor struct {
	loans   loans.Repository
	reserve reserve.Repository
	ledger  ledger.Service
	audit   audit.Recorder
	cfg     config.LedgerConfig
	logg    *logger.Logger
	now     func() time.Time
}

// NewProcessor validates params and returns a Processor.
func NewProcessor(params Params) (*Processor, error) {
	if params.Loans == nil {
		return nil, fmt.Errorf("loan repository required")
	}
	if params.Reserve == nil {
		return nil, fmt.Errorf("reserve repository required")
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
		loans:   params.Loans,
		reserve: params.Reserve,
		ledger:  params.Ledger,
		audit:   params.Audit,
		cfg:     params.Config,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

// Result describes what one coverage attempt did.
type Result struct {
	LoanID     uuid.UUID               `json:"loan_id"`
	Debt       decimal.Decimal         `json:"debt"`
	Covered    decimal.Decimal         `json:"covered"`
	Partial    bool                    `json:"partial"`
	ForcedPaid bool                    `json:"forced_paid"`
	Skipped    bool                    `json:"skipped"`
	Status     enums.LoanStatus        `json:"status"`
	Notices    []notifications.Message `json:"-"`
}

func (p *Processor) cutoff() time.Time {
	return p.now().UTC().Add(-time.Duration(p.cfg.FGCDelinquencyDays) * 24 * time.Hour)
}

// Candidates lists live loans past the delinquency threshold, earliest due first.
func (p *Processor) Candidates(ctx context.Context) ([]uuid.UUID, error) {
	return p.loans.ListDueBefore(ctx, enums.OutstandingLoanStatuses, p.cutoff())
}

// Cover absorbs as much of the loan's remaining debt as the fund holds.
func (p *Processor) Cover(ctx context.Context, tx *gorm.DB, loanID uuid.UUID) (*Result, error) {
	loansRepo := p.loans.WithTx(tx)
	loan, err := loansRepo.LockOverdue(ctx, loanID, enums.OutstandingLoanStatuses, p.cutoff())
	if err != nil {
		return nil, err
	}
	ctx = p.logg.WithLoanID(ctx, loan.ID.String())
	previous := loan.Status

	paid, err := loansRepo.PaidToDate(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	debt := loans.Debt(loan, paid)
	if !debt.IsPositive() {
		loans.Settle(loan)
		loan.Status = enums.LoanStatusPaid
		if err := loansRepo.Save(ctx, loan); err != nil {
			return nil, err
		}
		p.logg.Info(ctx, "delinquent loan had no debt left, marked paid")
		return &Result{LoanID: loan.ID, Debt: debt, Covered: decimal.Zero, ForcedPaid: true, Status: loan.Status}, nil
	}

	reserveRepo := p.reserve.WithTx(tx)
	acct, err := reserveRepo.Lock(ctx)
	if err != nil {
		return nil, err
	}
	covered := acct.CoverFromGuaranteeFund(debt)
	if !covered.IsPositive() {
		p.logg.Warn(p.logg.WithAmount(ctx, "debt", debt), "guarantee fund is empty, loan left uncovered")
		return &Result{LoanID: loan.ID, Debt: debt, Covered: decimal.Zero, Skipped: true, Status: loan.Status}, nil
	}
	if err := reserveRepo.Save(ctx, acct); err != nil {
		return nil, err
	}

	if err := loansRepo.AppendInstallment(ctx, &models.LoanInstallment{
		LoanID:     loan.ID,
		Amount:     covered,
		Source:     enums.InstallmentSourceFGC,
		FGCCovered: true,
	}); err != nil {
		return nil, err
	}

	partial := !loans.IsPaidOff(loan, paid.Add(covered), p.cfg.PaidTolerance)
	if partial {
		principal, _ := loans.SplitPayment(loan, covered)
		loans.Amortize(loan, principal, covered)
		loan.Status = enums.LoanStatusOverdue
	} else {
		loans.Settle(loan)
		loan.Status = enums.LoanStatusPaid
	}

	meta, err := loans.DecodeMetadata(loan.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loan metadata")
	}
	now := p.now().UTC()
	meta.Guarantee = &loans.GuaranteeStamp{Amount: covered, CoveredAt: now, Partial: partial}
	if loan.Metadata, err = meta.Encode(); err != nil {
		return nil, err
	}
	if err := loansRepo.Save(ctx, loan); err != nil {
		return nil, err
	}

	if _, err := p.ledger.WithTx(tx).Record(ctx, ledger.RecordInput{
		OwnerID:     loan.BorrowerID,
		Type:        enums.TransactionTypeSystemAdjustment,
		Amount:      covered.Neg(),
		Description: fmt.Sprintf("credit guarantee fund covered loan %s", loan.ID),
		Metadata: map[string]any{
			"loanId":  loan.ID,
			"debt":    debt,
			"covered": covered,
			"partial": partial,
		},
	}); err != nil {
		return nil, err
	}

	if _, err := p.audit.WithTx(tx).Record(ctx, audit.Entry{
		Action:     enums.AuditActionLoanFGCCovered,
		EntityType: audit.EntityLoan,
		EntityID:   loan.ID,
		Old:        map[string]any{"status": previous, "debt": debt},
		New:        map[string]any{"status": loan.Status, "covered": covered, "fund": acct.GuaranteeFund()},
	}); err != nil {
		return nil, err
	}

	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"debt":        debt.StringFixed(2),
		"covered":     covered.StringFixed(2),
		"loan_status": string(loan.Status),
	}), "loan covered by guarantee fund")

	return &Result{
		LoanID:  loan.ID,
		Debt:    debt,
		Covered: money.Round(covered),
		Partial: partial,
		Status:  loan.Status,
		Notices: []notifications.Message{{
			UserID: loan.BorrowerID,
			Type:   enums.NotificationTypeGuarantee,
			Title:  "Loan written off",
			Body:   fmt.Sprintf("The credit guarantee fund covered %s of your overdue loan.", covered.StringFixed(2)),
		}},
	}, nil
}
