package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/enums"
)

// Quota is one capital unit held by a member.
type Quota struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index"`
	PurchasePrice decimal.Decimal   `gorm:"column:purchase_price;type:numeric(18,2);not null"`
	CurrentValue  decimal.Decimal   `gorm:"column:current_value;type:numeric(18,2);not null"`
	Status        enums.QuotaStatus `gorm:"column:status;type:text;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Quota) TableName() string { return "quotas" }

func (q *Quota) BeforeCreate(*gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}
