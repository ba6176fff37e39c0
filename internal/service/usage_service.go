package service

import (
	"context"
	"time"

	"github.com/qs3c/bravo_premium_server/internal/policy"
	"github.com/qs3c/bravo_premium_server/internal/repository"
)

// UsageService 免费额度的实时用量，按 UTC 自然月/自然日统计
type UsageService struct {
	usageRepo *repository.UsageRepository
}

func NewUsageService(usageRepo *repository.UsageRepository) *UsageService {
	return &UsageService{usageRepo: usageRepo}
}

// periodBounds 返回 now 所在自然周期的 [start, end)
func periodBounds(period policy.Period, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	switch period {
	case policy.PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
}

// CustomDrillsThisMonth 本月已创建的自建训练数
func (s *UsageService) CustomDrillsThisMonth(ctx context.Context, userID int64, now time.Time) (int, error) {
	from, to := periodBounds(policy.PeriodMonth, now)
	n, err := s.usageRepo.CountCustomDrills(ctx, userID, from, to)
	return int(n), err
}

// SessionsToday 今天已完成的训练课数
func (s *UsageService) SessionsToday(ctx context.Context, userID int64, now time.Time) (int, error) {
	from, to := periodBounds(policy.PeriodDay, now)
	n, err := s.usageRepo.CountCompletedSessions(ctx, userID, from, to)
	return int(n), err
}

// Used 某个带额度功能在当前周期内的用量
func (s *UsageService) Used(ctx context.Context, userID int64, feature policy.Feature, now time.Time) (int, error) {
	switch feature {
	case policy.FeatureUnlimitedCustomDrills:
		return s.CustomDrillsThisMonth(ctx, userID, now)
	case policy.FeatureUnlimitedSessions:
		return s.SessionsToday(ctx, userID, now)
	}
	return 0, nil
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
