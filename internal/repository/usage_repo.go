package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

// UsageRepository 只读统计，用量始终实时计算，不做缓存
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// CountCustomDrills 统计 [from, to) 内创建的自建训练
func (r *UsageRepository) CountCustomDrills(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CustomDrill{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Count(&count).Error
	return count, err
}

// CountCompletedSessions 统计 [from, to) 内完成的训练课
func (r *UsageRepository) CountCompletedSessions(ctx context.Context, userID int64, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.CompletedSession{}).
		Where("user_id = ? AND date >= ? AND date < ?", userID, from, to).
		Count(&count).Error
	return count, err
}
