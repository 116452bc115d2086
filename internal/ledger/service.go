// Package ledger stores transaction rows, the history every balance and
// reserve movement is reconstructed from.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	"github.com/quotaclub/settlement/pkg/money"
)

// Service records ledger-generated transaction rows.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Record(ctx context.Context, input RecordInput) (*models.Transaction, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// RecordInput captures the data a ledger-generated transaction requires.
// Metadata is marshaled as is; a nil value stores no metadata.
type RecordInput struct {
	OwnerID     uuid.UUID
	Type        enums.TransactionType
	Amount      decimal.Decimal
	Status      enums.TransactionStatus
	Description string
	Metadata    any
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx), now: s.now}
}

// Record inserts a transaction row. Terminal rows are stamped as processed.
func (s *service) Record(ctx context.Context, input RecordInput) (*models.Transaction, error) {
	if input.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("owner id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	status := input.Status
	if status == "" {
		status = enums.TransactionStatusApproved
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid transaction status %q", status)
	}

	var metadata json.RawMessage
	if input.Metadata != nil {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal transaction metadata: %w", err)
		}
		metadata = raw
	}

	txn := &models.Transaction{
		OwnerID:      input.OwnerID,
		Type:         input.Type,
		Amount:       money.Round(input.Amount),
		Status:       status,
		PayoutStatus: enums.PayoutStatusNone,
		Description:  input.Description,
		Metadata:     metadata,
	}
	if status.IsTerminal() {
		processed := s.now().UTC()
		txn.ProcessedAt = &processed
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
