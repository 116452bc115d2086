// Package transactions decides pending ledger entries. Each decision runs
// inside the caller's scope and applies the money movement of one
// transaction type exactly once.
package transactions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/balances"
	"github.com/quotaclub/settlement/internal/gateway"
	"github.com/quotaclub/settlement/internal/ledger"
	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/marketplace"
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

// Params wires the collaborators a StateMachine needs.
type Params struct {
	Transactions ledger.Repository
	Ledger       ledger.Service
	Loans        loans.Repository
	Reserve      reserve.Repository
	Balances     balances.Ledger
	Quotas       quotas.Repository
	Marketplace  marketplace.Repository
	Gateway      *gateway.Calculator
	Audit        audit.Recorder
	Config       config.LedgerConfig
	Logger       *logger.Logger
	Now          func() time.Time
}

// StateMachine moves transactions out of PENDING/PENDING_CONFIRMATION.
type StateMachine struct {
	transactions ledger.Repository
	ledger       ledger.Service
	loans        loans.Repository
	reserve      reserve.Repository
	balances     balances.Ledger
	quotas       quotas.Repository
	marketplace  marketplace.Repository
	gateway      *gateway.Calculator
	audit        audit.Recorder
	cfg          config.LedgerConfig
	shares       reserve.Shares
	logg         *logger.Logger
	now          func() time.Time
}

// NewStateMachine validates params and returns a StateMachine.
func NewStateMachine(params Params) (*StateMachine, error) {
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
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
	if params.Marketplace == nil {
		return nil, fmt.Errorf("marketplace repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway calculator required")
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
	return &StateMachine{
		transactions: params.Transactions,
		ledger:       params.Ledger,
		loans:        params.Loans,
		reserve:      params.Reserve,
		balances:     params.Balances,
		quotas:       params.Quotas,
		marketplace:  params.Marketplace,
		gateway:      params.Gateway,
		audit:        params.Audit,
		cfg:          params.Config,
		shares:       shares,
		logg:         params.Logger,
		now:          params.Now,
	}, nil
}

// Input is one operator decision on a pending transaction.
type Input struct {
	TransactionID uuid.UUID
	Action        enums.ApprovalAction
	ActorID       *uuid.UUID
}

// Outcome describes what a committed decision changed. Notices are delivered
// by the caller once the scope has committed.
type Outcome struct {
	Transaction      models.Transaction      `json:"transaction"`
	Action           enums.ApprovalAction    `json:"action"`
	LiquidityWarning bool                    `json:"liquidity_warning"`
	Referral         *models.Transaction     `json:"referral,omitempty"`
	Notices          []notifications.Message `json:"-"`
}

func (o *Outcome) notify(userID uuid.UUID, kind enums.NotificationType, title, body string) {
	o.Notices = append(o.Notices, notifications.Message{UserID: userID, Type: kind, Title: title, Body: body})
}

// Process applies in.Action to the transaction. The row is locked while still
// actionable; a second decision on the same id fails with ALREADY_PROCESSED.
func (m *StateMachine) Process(ctx context.Context, tx *gorm.DB, in Input) (*Outcome, error) {
	if in.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if !in.Action.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid action %q", in.Action)
	}

	repo := m.transactions.WithTx(tx)
	txn, err := repo.LockActionable(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	ctx = m.logg.WithTransactionID(ctx, txn.ID.String())
	if in.ActorID != nil {
		ctx = m.logg.WithActorID(ctx, in.ActorID.String())
	}

	if txn.Type.IsSystemGenerated() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s transactions cannot be decided", txn.Type)
	}
	txn.Amount = money.Round(txn.Amount)
	if !txn.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction amount must be positive")
	}
	payload, err := DecodePayload(txn.Type, txn.Metadata)
	if err != nil {
		return nil, err
	}

	previous := txn.Status
	out := &Outcome{Action: in.Action}
	auditAction := enums.AuditActionTransactionApproved
	if in.Action == enums.ApprovalActionReject {
		auditAction = enums.AuditActionTransactionRejected
		if err := m.reject(ctx, tx, txn, payload); err != nil {
			return nil, err
		}
		txn.Status = enums.TransactionStatusRejected
		out.notify(txn.OwnerID, enums.NotificationTypeTransaction, "Request rejected",
			fmt.Sprintf("Your %s request of %s was rejected.", describe(txn.Type), txn.Amount.StringFixed(2)))
	} else {
		if err := m.approve(ctx, tx, txn, payload, out); err != nil {
			return nil, err
		}
		txn.Status = enums.TransactionStatusApproved
		if txn.Type == enums.TransactionTypeWithdrawal {
			txn.PayoutStatus = enums.PayoutStatusPendingPayment
		} else {
			txn.PayoutStatus = enums.PayoutStatusNone
		}
		out.notify(txn.OwnerID, enums.NotificationTypeTransaction, "Request approved",
			fmt.Sprintf("Your %s request of %s was approved.", describe(txn.Type), txn.Amount.StringFixed(2)))
	}

	processed := m.now().UTC()
	txn.ProcessedAt = &processed
	if err := repo.Save(ctx, txn); err != nil {
		return nil, err
	}

	if _, err := m.audit.WithTx(tx).Record(ctx, audit.Entry{
		ActorID:    in.ActorID,
		Action:     auditAction,
		EntityType: audit.EntityTransaction,
		EntityID:   txn.ID,
		Old:        map[string]any{"status": previous},
		New: map[string]any{
			"status":       txn.Status,
			"payoutStatus": txn.PayoutStatus,
			"amount":       txn.Amount,
		},
	}); err != nil {
		return nil, err
	}

	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"transaction_type": string(txn.Type),
		"action":           string(in.Action),
		"amount":           txn.Amount.StringFixed(2),
	}), "transaction decided")

	out.Transaction = *txn
	return out, nil
}

func (m *StateMachine) approve(ctx context.Context, tx *gorm.DB, txn *models.Transaction, payload Payload, out *Outcome) error {
	switch p := payload.(type) {
	case *BuyQuota:
		return m.approveBuyQuota(ctx, tx, txn, p, out)
	case *LoanPayment:
		return m.approveLoanPayment(ctx, tx, txn, p, out)
	case *Withdrawal:
		return m.approveWithdrawal(ctx, tx, txn, p, out)
	case *Deposit:
		return m.approveDeposit(ctx, tx, txn, p)
	case *MembershipUpgrade:
		return m.approveMembershipUpgrade(ctx, tx, txn, p)
	case *MarketPurchase:
		return m.approveMarketPurchase(ctx, tx, txn, p, out)
	case *MarketBoost:
		return m.approveMarketBoost(ctx, tx, txn, p)
	case *ReferralBonus:
		return m.approveReferralBonus(ctx, tx, txn, p)
	default:
		return pkgerrors.Newf(pkgerrors.CodeInternal, "no handler for %T", payload)
	}
}

// reject compensates whatever the request took when it was created. Balance
// debits are refunded; a pending loan payment reopens the loan.
func (m *StateMachine) reject(ctx context.Context, tx *gorm.DB, txn *models.Transaction, payload Payload) error {
	if p, ok := payload.(*LoanPayment); ok {
		loansRepo := m.loans.WithTx(tx)
		loan, err := loansRepo.LockInStatus(ctx, p.LoanID, enums.LoanStatusPaymentPending)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyProcessed):
			// loan already moved on; nothing to reopen
		case err != nil:
			return err
		default:
			loan.Status = enums.LoanStatusApproved
			if err := loansRepo.Save(ctx, loan); err != nil {
				return err
			}
		}
	}

	refund := txn.Type == enums.TransactionTypeWithdrawal
	if funded, ok := payload.(interface{ FromBalance() bool }); ok && funded.FromBalance() {
		refund = true
	}
	if !refund {
		return nil
	}
	members := m.balances.WithTx(tx)
	if _, err := members.Lock(ctx, txn.OwnerID); err != nil {
		return err
	}
	if err := members.Credit(ctx, txn.OwnerID, txn.Amount); err != nil {
		return err
	}
	m.logg.Info(m.logg.WithAmount(ctx, "refund", txn.Amount), "rejected request refunded")
	return nil
}

func describe(t enums.TransactionType) string {
	switch t {
	case enums.TransactionTypeBuyQuota:
		return "quota purchase"
	case enums.TransactionTypeLoanPayment:
		return "loan payment"
	case enums.TransactionTypeWithdrawal:
		return "withdrawal"
	case enums.TransactionTypeDeposit:
		return "deposit"
	case enums.TransactionTypeMembershipUpgrade:
		return "membership upgrade"
	case enums.TransactionTypeMarketPurchase:
		return "marketplace purchase"
	case enums.TransactionTypeMarketBoost:
		return "listing boost"
	case enums.TransactionTypeReferralBonus:
		return "referral bonus"
	default:
		return string(t)
	}
}
