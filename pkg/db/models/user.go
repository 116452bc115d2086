package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/enums"
)

// User is a club member. Registration lives elsewhere; the ledger owns
// balance and score.
type User struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name           string               `gorm:"column:name;type:text;not null"`
	Email          string               `gorm:"column:email;type:text;not null;uniqueIndex"`
	Balance        decimal.Decimal      `gorm:"column:balance;type:numeric(18,2);not null;default:0"`
	Score          int                  `gorm:"column:score;not null;default:0"`
	ReferredBy     *uuid.UUID           `gorm:"column:referred_by;type:uuid"`
	MembershipTier enums.MembershipTier `gorm:"column:membership_tier;type:text;not null;default:'FREE'"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
