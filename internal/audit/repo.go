package audit

import (
	"context"

	"gorm.io/gorm"

	"github.com/quotaclub/settlement/internal/repo"
	"github.com/quotaclub/settlement/pkg/db/models"
	"github.com/quotaclub/settlement/pkg/pagination"
)

// Repository manages persistence for audit entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, query listQuery) ([]models.AuditLog, *pagination.Cursor, error)
}

type repository struct {
	base repo.Base
}

type listQuery struct {
	EntityType string
	EntityID   string
	Limit      int
	Cursor     *pagination.Cursor
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: r.base.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.base.DB(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.AuditLog, *pagination.Cursor, error) {
	q := r.base.DB(ctx).Model(&models.AuditLog{})
	if query.EntityType != "" {
		q = q.Where("entity_type = ?", query.EntityType)
	}
	if query.EntityID != "" {
		q = q.Where("entity_id = ?", query.EntityID)
	}

	var rows []models.AuditLog
	if err := pagination.Keyset(q, query.Cursor, query.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(rows, query.Limit, func(row models.AuditLog) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}
