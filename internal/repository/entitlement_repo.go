package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// Transaction 在同一个事务里执行 fn，fn 拿到的 repo 绑定到该事务
func (r *EntitlementRepository) Transaction(ctx context.Context, fn func(tx *EntitlementRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&EntitlementRepository{db: tx})
	})
}

func (r *EntitlementRepository) GetByUserID(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var ent model.Entitlement
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

// GetByUserIDForUpdate 读取并锁定该行，只能在 Transaction 内使用
func (r *EntitlementRepository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var ent model.Entitlement
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

// GetOrCreate 不存在时插入一条 free 记录，并发调用只会留下一行
func (r *EntitlementRepository) GetOrCreate(ctx context.Context, userID int64, now time.Time) (*model.Entitlement, error) {
	ent := &model.Entitlement{
		UserID:    userID,
		Status:    model.StatusFree,
		Plan:      model.PlanFree,
		StartDate: now,
		IsActive:  true,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(ent).Error
	if err != nil {
		return nil, err
	}
	return r.GetByUserID(ctx, userID)
}

func (r *EntitlementRepository) Save(ctx context.Context, ent *model.Entitlement) error {
	return r.db.WithContext(ctx).Save(ent).Error
}

// elapsed 匹配有效期已过但状态仍为 premium/trial 的记录
func elapsed(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(
			"((status IN ? AND end_date IS NOT NULL AND end_date < ?) OR (status = ? AND trial_end_date IS NOT NULL AND trial_end_date < ?))",
			[]model.Status{model.StatusPremium, model.StatusTrial}, now,
			model.StatusTrial, now,
		)
	}
}

// ExpireIfElapsed 有效期已过时转为 expired，返回是否发生了转换。
// 条件写在同一条 UPDATE 里，不会覆盖并发写入的新订阅。
func (r *EntitlementRepository) ExpireIfElapsed(ctx context.Context, userID int64, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Entitlement{}).
		Where("user_id = ?", userID).
		Scopes(elapsed(now)).
		Updates(map[string]interface{}{
			"status":     model.StatusExpired,
			"is_active":  false,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListElapsedUserIDs 列出有效期已过但尚未转换的用户
func (r *EntitlementRepository) ListElapsedUserIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Entitlement{}).
		Scopes(elapsed(now)).
		Order("user_id").
		Limit(limit).
		Pluck("user_id", &ids).Error
	return ids, err
}

type statusCount struct {
	Status string
	Total  int64
}

// CountByStatus 按状态统计会员数量
func (r *EntitlementRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []statusCount
	err := r.db.WithContext(ctx).
		Model(&model.Entitlement{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
