// Package audit keeps the append-only trail of state-changing actions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/enums"
	pkgerrors "github.com/quotaclub/settlement/pkg/errors"
	"github.com/quotaclub/settlement/pkg/pagination"
)

// Entity types recorded in the trail.
const (
	EntityTransaction = "transaction"
	EntityLoan        = "loan"
)

// Entry is one state change to record. Old and New are marshaled to JSON.
type Entry struct {
	ActorID    *uuid.UUID
	Action     enums.AuditAction
	EntityType string
	EntityID   uuid.UUID
	Old        any
	New        any
}

// Recorder appends audit entries. WithTx binds it to the caller's scope so the
// entry commits or rolls back with the change it describes.
type Recorder interface {
	WithTx(tx *gorm.DB) Recorder
	Record(ctx context.Context, entry Entry) (*models.AuditLog, error)
}

type recorder struct {
	repo Repository
}

// NewRecorder wires an audit recorder with the provided repository.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo}, nil
}

func (r *recorder) WithTx(tx *gorm.DB) Recorder {
	return &recorder{repo: r.repo.WithTx(tx)}
}

func (r *recorder) Record(ctx context.Context, entry Entry) (*models.AuditLog, error) {
	if !entry.Action.IsValid() {
		return nil, fmt.Errorf("invalid audit action %q", entry.Action)
	}
	if entry.EntityType == "" {
		return nil, fmt.Errorf("entity type is required")
	}
	if entry.EntityID == uuid.Nil {
		return nil, fmt.Errorf("entity id is required")
	}

	oldValues, err := marshalValues(entry.Old)
	if err != nil {
		return nil, fmt.Errorf("marshal old values: %w", err)
	}
	newValues, err := marshalValues(entry.New)
	if err != nil {
		return nil, fmt.Errorf("marshal new values: %w", err)
	}

	row := &models.AuditLog{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID.String(),
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if err := r.repo.Create(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

func marshalValues(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil, nil
		}
		return raw, nil
	}
	return json.Marshal(v)
}

// ListParams filters the trail, newest first.
type ListParams struct {
	EntityType string
	EntityID   string
	Limit      int
	Cursor     string
}

// ListResult wraps returned entries and the cursor for the next page.
type ListResult struct {
	Items  []models.AuditLog `json:"items"`
	Cursor string            `json:"cursor"`
}

// Reader pages through the audit trail for operators.
type Reader struct {
	repo Repository
}

// NewReader wires an audit reader.
func NewReader(repo Repository) (*Reader, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "audit repository required")
	}
	return &Reader{repo: repo}, nil
}

// List returns one page of entries matching params.
func (r *Reader) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listQuery{
		EntityType: params.EntityType,
		EntityID:   params.EntityID,
		Limit:      params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := r.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}
