package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/enums"
)

// Transaction is the generic ledger entry. Metadata holds the per-type payload.
type Transaction struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID      uuid.UUID               `gorm:"column:owner_id;type:uuid;not null;index"`
	Type         enums.TransactionType   `gorm:"column:type;type:text;not null"`
	Amount       decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	Status       enums.TransactionStatus `gorm:"column:status;type:text;not null;index"`
	PayoutStatus enums.PayoutStatus      `gorm:"column:payout_status;type:text;not null;default:'NONE'"`
	Description  string                  `gorm:"column:description;type:text"`
	Metadata     json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	ProcessedAt  *time.Time              `gorm:"column:processed_at;type:timestamptz"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Transaction) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
