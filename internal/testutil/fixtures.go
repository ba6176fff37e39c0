package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/bravo_premium_server/internal/model"
)

// TestEntitlement 创建测试会员记录，默认 free
func TestEntitlement(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Entitlement)) *model.Entitlement {
	t.Helper()

	ent := &model.Entitlement{
		UserID:    userID,
		Status:    model.StatusFree,
		Plan:      model.PlanFree,
		StartDate: time.Now().UTC(),
		IsActive:  true,
	}

	for _, opt := range opts {
		opt(ent)
	}

	if err := db.Create(ent).Error; err != nil {
		t.Fatalf("Failed to create test entitlement: %v", err)
	}

	return ent
}

// WithPremium 设置为付费会员，end 为到期时间
func WithPremium(plan model.Plan, end time.Time) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.Status = model.StatusPremium
		e.Plan = plan
		e.EndDate = &end
		platform := model.PlatformIOS
		e.Platform = &platform
	}
}

// WithTrial 设置为试用
func WithTrial(trialEnd time.Time) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.Status = model.StatusTrial
		e.TrialEndDate = &trialEnd
	}
}

// WithStatus 直接设置状态
func WithStatus(status model.Status) func(*model.Entitlement) {
	return func(e *model.Entitlement) {
		e.Status = status
		e.IsActive = status != model.StatusExpired
	}
}

// TestCustomDrill 创建自建训练
func TestCustomDrill(t *testing.T, db *gorm.DB, userID int64, createdAt time.Time) *model.CustomDrill {
	t.Helper()

	drill := &model.CustomDrill{
		UserID:    userID,
		Title:     fmt.Sprintf("Drill %d", time.Now().UnixNano()%10000),
		CreatedAt: createdAt,
	}
	if err := db.Create(drill).Error; err != nil {
		t.Fatalf("Failed to create test custom drill: %v", err)
	}
	return drill
}

// TestCompletedSession 创建已完成训练课
func TestCompletedSession(t *testing.T, db *gorm.DB, userID int64, date time.Time) *model.CompletedSession {
	t.Helper()

	session := &model.CompletedSession{
		UserID:      userID,
		Date:        date,
		SessionType: "drill_training",
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}
	return session
}

// AuditCount 统计某种状态的审计记录数
func AuditCount(t *testing.T, db *gorm.DB, status string) int64 {
	t.Helper()

	var count int64
	if err := db.Model(&model.AuditLog{}).Where("status = ?", status).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count audit logs: %v", err)
	}
	return count
}

// UserAuditLogs 按时间倒序列出某个用户的审计记录
func UserAuditLogs(t *testing.T, db *gorm.DB, userID int64) []model.AuditLog {
	t.Helper()

	var logs []model.AuditLog
	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Find(&logs).Error; err != nil {
		t.Fatalf("Failed to list audit logs: %v", err)
	}
	return logs
}
