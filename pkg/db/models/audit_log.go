package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/enums"
)

// AuditLog is an append-only record of a state-changing action.
type AuditLog struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ActorID    *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	Action     enums.AuditAction `gorm:"column:action;type:text;not null"`
	EntityType string            `gorm:"column:entity_type;type:text;not null"`
	EntityID   string            `gorm:"column:entity_id;type:text;not null"`
	OldValues  json.RawMessage   `gorm:"column:old_values;type:jsonb"`
	NewValues  json.RawMessage   `gorm:"column:new_values;type:jsonb"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
