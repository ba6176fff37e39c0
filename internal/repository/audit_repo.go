package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

// AuditRepository 审计表只追加，查询由外部工具负责
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
