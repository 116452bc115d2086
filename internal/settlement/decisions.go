package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/loans"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/internal/scope"
	"github.com/quotaclub/settlement/internal/transactions"
	"github.com/quotaclub/settlement/pkg/enums"
)

const (
	kindTransaction = "transaction"
	kindLoan        = "loan"
)

// ApproveOrRejectTransaction decides one pending transaction.
func (s *Service) ApproveOrRejectTransaction(ctx context.Context, id uuid.UUID, action enums.ApprovalAction, actorID *uuid.UUID) scope.Result[*transactions.Outcome] {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	res := scope.Run(ctx, s.runner, func(ctx context.Context, tx *gorm.DB) (*transactions.Outcome, error) {
		return s.transactions.Process(ctx, tx, transactions.Input{
			TransactionID: id,
			Action:        action,
			ActorID:       actorID,
		})
	})

	recordType := ""
	if res.Success {
		recordType = string(res.Data.Transaction.Type)
		if res.Data.LiquidityWarning {
			s.metrics.IncLiquidityWarning()
		}
		s.notify(ctx, res.Data.Notices)
	}
	s.metrics.ObserveDecision(kindTransaction, recordType, string(action), res.Success)
	logFailure(ctx, s.logg, "transaction decision failed", res)
	return res
}

// ApproveOrRejectLoan decides one pending loan request.
func (s *Service) ApproveOrRejectLoan(ctx context.Context, id uuid.UUID, action enums.ApprovalAction, actorID *uuid.UUID) scope.Result[*loans.Decision] {
	ctx = s.logg.WithLoanID(ctx, id.String())
	res := scope.Run(ctx, s.runner, func(ctx context.Context, tx *gorm.DB) (*loans.Decision, error) {
		return s.loans.Decide(ctx, tx, loans.Input{
			LoanID:  id,
			Action:  action,
			ActorID: actorID,
		})
	})

	if res.Success {
		s.notify(ctx, []notifications.Message{loanNotice(res.Data)})
	}
	s.metrics.ObserveDecision(kindLoan, "", string(action), res.Success)
	logFailure(ctx, s.logg, "loan decision failed", res)
	return res
}

func loanNotice(decision *loans.Decision) notifications.Message {
	msg := notifications.Message{
		UserID: decision.Loan.BorrowerID,
		Type:   enums.NotificationTypeLoan,
	}
	if decision.Action == enums.ApprovalActionReject {
		msg.Title = "Loan request declined"
		msg.Body = fmt.Sprintf("Your loan request of %s was declined.", decision.Loan.Amount.StringFixed(2))
		return msg
	}
	msg.Title = "Loan approved"
	msg.Body = fmt.Sprintf("%s was credited to your balance after a %s origination fee.",
		decision.NetAmount.StringFixed(2), decision.OriginationFee.StringFixed(2))
	return msg
}

// ConfirmPayout marks an approved withdrawal as paid out.
func (s *Service) ConfirmPayout(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) scope.Result[*transactions.PayoutOutcome] {
	ctx = s.logg.WithTransactionID(ctx, id.String())
	res := scope.Run(ctx, s.runner, func(ctx context.Context, tx *gorm.DB) (*transactions.PayoutOutcome, error) {
		return s.transactions.ConfirmPayout(ctx, tx, transactions.PayoutInput{
			TransactionID: id,
			ActorID:       actorID,
		})
	})
	if res.Success {
		s.notify(ctx, res.Data.Notices)
	}
	logFailure(ctx, s.logg, "payout confirmation failed", res)
	return res
}
