package transactions

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/audit"
	"github.com/quotaclub/settlement/internal/notifications"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
)

// PayoutInput confirms that an approved withdrawal was paid out by hand.
type PayoutInput struct {
	TransactionID uuid.UUID
	ActorID       *uuid.UUID
}

// PayoutOutcome is the reconciled withdrawal plus the notices to send.
type PayoutOutcome struct {
	Transaction models.Transaction      `json:"transaction"`
	Notices     []notifications.Message `json:"-"`
}

// ConfirmPayout moves a withdrawal from PENDING_PAYMENT to PAID. Money already
// left operating cash at approval, so only the payout status changes.
func (m *StateMachine) ConfirmPayout(ctx context.Context, tx *gorm.DB, in PayoutInput) (*PayoutOutcome, error) {
	if in.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	repo := m.transactions.WithTx(tx)
	txn, err := repo.LockAwaitingPayout(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	ctx = m.logg.WithTransactionID(ctx, txn.ID.String())

	txn.PayoutStatus = enums.PayoutStatusPaid
	if err := repo.Save(ctx, txn); err != nil {
		return nil, err
	}
	if _, err := m.audit.WithTx(tx).Record(ctx, audit.Entry{
		ActorID:    in.ActorID,
		Action:     enums.AuditActionPayoutConfirmed,
		EntityType: audit.EntityTransaction,
		EntityID:   txn.ID,
		Old:        map[string]any{"payoutStatus": enums.PayoutStatusPendingPayment},
		New:        map[string]any{"payoutStatus": txn.PayoutStatus},
	}); err != nil {
		return nil, err
	}
	m.logg.Info(ctx, "withdrawal payout confirmed")

	return &PayoutOutcome{
		Transaction: *txn,
		Notices: []notifications.Message{{
			UserID: txn.OwnerID,
			Type:   enums.NotificationTypeTransaction,
			Title:  "Withdrawal paid",
			Body:   fmt.Sprintf("Your withdrawal of %s has been sent.", txn.Amount.StringFixed(2)),
		}},
	}, nil
}
