package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/enums"
)

// Loan is a member's borrowing. Amount and TotalRepayment amortize as
// installments arrive; the Original* columns never change after creation.
type Loan struct {
	ID                     uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	BorrowerID             uuid.UUID        `gorm:"column:borrower_id;type:uuid;not null;index"`
	Amount                 decimal.Decimal  `gorm:"column:amount;type:numeric(18,2);not null"`
	TotalRepayment         decimal.Decimal  `gorm:"column:total_repayment;type:numeric(18,2);not null"`
	OriginalAmount         decimal.Decimal  `gorm:"column:original_amount;type:numeric(18,2);not null"`
	OriginalTotalRepayment decimal.Decimal  `gorm:"column:original_total_repayment;type:numeric(18,2);not null"`
	InstallmentsPlan       int              `gorm:"column:installments_plan;not null"`
	Status                 enums.LoanStatus `gorm:"column:status;type:text;not null;index"`
	DueDate                *time.Time       `gorm:"column:due_date;type:timestamptz"`
	ApprovedAt             *time.Time       `gorm:"column:approved_at;type:timestamptz"`
	Metadata               json.RawMessage  `gorm:"column:metadata;type:jsonb"`
	CreatedAt              time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *Loan) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// LoanInstallment is an append-only partial settlement of a loan.
type LoanInstallment struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	LoanID        uuid.UUID               `gorm:"column:loan_id;type:uuid;not null;index"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null"`
	Source        enums.InstallmentSource `gorm:"column:source;type:text;not null"`
	FGCCovered    bool                    `gorm:"column:fgc_covered;not null;default:false"`
	TransactionID *uuid.UUID              `gorm:"column:transaction_id;type:uuid"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (i *LoanInstallment) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
