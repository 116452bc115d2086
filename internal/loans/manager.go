package loans

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
	"github.com/quotaclub/settlement/internal/quotas"
	"github.com/quotaclub/settlement/internal/reserve"
	"github.com/quotaclub/settlement/pkg/config"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/logger"
	"github.com/quotaclub/settlement/pkg/money"
)

// ManagerParams wires the collaborators a Manager needs.
type ManagerParams struct {
	Loans    Repository
	Reserve  reserve.Repository
	Balances balances.Ledger
	Quotas   quotas.Repository
	Ledger   ledger.Service
	Audit    audit.Recorder
	Config   config.LedgerConfig
	Logger   *logger.Logger
	Now      func() time.Time
}

// Manager decides pending loan requests.
type Manager struct {
	loans    Repository
	reserve  reserve.Repository
	balances balances.Ledger
	quotas   quotas.Repository
	ledger   ledger.Service
	audit    audit.Recorder
	cfg      config.LedgerConfig
	shares   reserve.Shares
	logg     *logger.Logger
	now      func() time.Time
}

// NewManager validates params and returns a Manager.
func NewManager(params ManagerParams) (*Manager, error) {
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
	shares := reserve.SharesFromConfig(params.Config)
	if err := shares.Validate(); err != nil {
		return nil, err
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Manager{
		loans:    params.Loans,
		reserve:  params.Reserve,
		balances: params.Balances,
		quotas:   params.Quotas,
		ledger:   params.Ledger,
		audit:    params.Audit,
		cfg:      params.Config,
		shares:   shares,
		logg:     params.Logger,
		now:      params.Now,
	}, nil
}

// Input is one operator decision on a pending loan.
type Input struct {
	LoanID  uuid.UUID
	Action  enums.ApprovalAction
	ActorID *uuid.UUID
}

// Decision describes what a committed decision changed.
type Decision struct {
	Loan           models.Loan          `json:"loan"`
	Action         enums.ApprovalAction `json:"action"`
	OriginationFee decimal.Decimal      `json:"origination_fee"`
	NetAmount      decimal.Decimal      `json:"net_amount"`
	GuaranteeShare decimal.Decimal      `json:"guarantee_share"`
	Split          reserve.FeeSplit     `json:"split"`
	TransactionID  *uuid.UUID           `json:"transaction_id,omitempty"`
}

// Decide applies an APPROVE or REJECT to a pending loan inside the caller's
// scope. Locks are taken loan first, then the reserve row, then the borrower.
func (m *Manager) Decide(ctx context.Context, tx *gorm.DB, in Input) (*Decision, error) {
	if in.LoanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id is required")
	}
	if !in.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid action %q", in.Action)
	}

	loansRepo := m.loans.WithTx(tx)
	loan, err := loansRepo.LockInStatus(ctx, in.LoanID, enums.LoanStatusPending)
	if err != nil {
		return nil, err
	}
	ctx = m.logg.WithLoanID(ctx, loan.ID.String())

	if in.Action == enums.ApprovalActionReject {
		return m.reject(ctx, tx, loansRepo, loan, in.ActorID)
	}
	return m.approve(ctx, tx, loansRepo, loan, in.ActorID)
}

func (m *Manager) reject(ctx context.Context, tx *gorm.DB, loansRepo Repository, loan *models.Loan, actorID *uuid.UUID) (*Decision, error) {
	loan.Status = enums.LoanStatusRejected
	if err := loansRepo.Save(ctx, loan); err != nil {
		return nil, err
	}
	if _, err := m.audit.WithTx(tx).Record(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     enums.AuditActionLoanRejected,
		EntityType: audit.EntityLoan,
		EntityID:   loan.ID,
		Old:        map[string]any{"status": enums.LoanStatusPending},
		New:        map[string]any{"status": loan.Status},
	}); err != nil {
		return nil, err
	}
	m.logg.Info(ctx, "loan rejected")
	return &Decision{
		Loan:           *loan,
		Action:         enums.ApprovalActionReject,
		OriginationFee: decimal.Zero,
		NetAmount:      decimal.Zero,
		GuaranteeShare: decimal.Zero,
	}, nil
}

func (m *Manager) approve(ctx context.Context, tx *gorm.DB, loansRepo Repository, loan *models.Loan, actorID *uuid.UUID) (*Decision, error) {
	amount := money.Round(loan.Amount)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan amount must be positive")
	}
	if loan.InstallmentsPlan <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "installments plan must be positive")
	}

	acct, err := m.reserve.WithTx(tx).Lock(ctx)
	if err != nil {
		return nil, err
	}

	quotaValue, err := m.quotas.WithTx(tx).ActiveValue(ctx, loan.BorrowerID)
	if err != nil {
		return nil, err
	}
	outstanding, err := loansRepo.OutstandingDebt(ctx, loan.BorrowerID, loan.ID)
	if err != nil {
		return nil, err
	}
	limit := CreditLimit(quotaValue, m.cfg.LoanCreditRatio)
	available := Available(limit, outstanding)
	if amount.GreaterThan(available) {
		return nil, pkgerrors.Newf(pkgerrors.CodeCreditLimitExceeded,
			"requested %s exceeds available credit %s", amount.StringFixed(2), available.StringFixed(2)).
			WithDetails(map[string]any{
				"requested":   amount.StringFixed(2),
				"limit":       limit.StringFixed(2),
				"outstanding": outstanding.StringFixed(2),
				"available":   available.StringFixed(2),
			})
	}

	fee := money.Round(amount.Mul(m.cfg.LoanOriginationRate))
	net := amount.Sub(fee)
	if lendable := acct.LendableCash(); net.GreaterThan(lendable) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientLiquidity,
			"payout %s exceeds lendable cash %s", net.StringFixed(2), lendable.StringFixed(2)).
			WithDetails(map[string]any{"net_amount": net.StringFixed(2), "lendable_cash": lendable.StringFixed(2)})
	}

	borrowers := m.balances.WithTx(tx)
	if _, err := borrowers.Lock(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}

	if err := acct.AdjustOperatingCash(net.Neg(), reserve.ReasonLoanPayout); err != nil {
		return nil, err
	}
	if err := borrowers.Credit(ctx, loan.BorrowerID, net); err != nil {
		return nil, err
	}
	guarantee := money.Round(fee.Mul(m.cfg.LoanFeeGuaranteeShare))
	if err := acct.FundGuarantee(guarantee); err != nil {
		return nil, err
	}
	split := acct.SplitFee(fee.Sub(guarantee), m.shares)
	if err := m.reserve.WithTx(tx).Save(ctx, acct); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	due := now.Add(time.Duration(loan.InstallmentsPlan) * m.cfg.LoanInstallmentPeriod)
	meta, err := DecodeMetadata(loan.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid loan metadata")
	}
	meta.OriginationFee = &OriginationFee{
		Fee:         fee,
		NetAmount:   net,
		Guarantee:   guarantee,
		Tax:         split.Tax,
		Operational: split.Operational,
		Owner:       split.Owner,
		Investment:  split.Investment,
	}
	encoded, err := meta.Encode()
	if err != nil {
		return nil, err
	}
	loan.Metadata = encoded
	loan.Status = enums.LoanStatusApproved
	loan.ApprovedAt = &now
	loan.DueDate = &due
	if err := loansRepo.Save(ctx, loan); err != nil {
		return nil, err
	}

	txn, err := m.ledger.WithTx(tx).Record(ctx, ledger.RecordInput{
		OwnerID:     loan.BorrowerID,
		Type:        enums.TransactionTypeLoanApproved,
		Amount:      amount,
		Description: "loan approved",
		Metadata: map[string]any{
			"loanId":         loan.ID,
			"originationFee": fee,
			"netAmount":      net,
		},
	})
	if err != nil {
		return nil, err
	}

	if _, err := m.audit.WithTx(tx).Record(ctx, audit.Entry{
		ActorID:    actorID,
		Action:     enums.AuditActionLoanApproved,
		EntityType: audit.EntityLoan,
		EntityID:   loan.ID,
		Old:        map[string]any{"status": enums.LoanStatusPending},
		New: map[string]any{
			"status":         loan.Status,
			"originationFee": fee,
			"netAmount":      net,
			"dueDate":        due,
		},
	}); err != nil {
		return nil, err
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"net_amount":      net.StringFixed(2),
		"origination_fee": fee.StringFixed(2),
	}), "loan approved")

	return &Decision{
		Loan:           *loan,
		Action:         enums.ApprovalActionApprove,
		OriginationFee: fee,
		NetAmount:      net,
		GuaranteeShare: guarantee,
		Split:          split,
		TransactionID:  &txn.ID,
	}, nil
}
