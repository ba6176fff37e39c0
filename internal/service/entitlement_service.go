package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/model/dto"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/pubsub"
	"github.com/qs3c/bravo_premium_server/internal/policy"
	"github.com/qs3c/bravo_premium_server/internal/repository"
)

var (
	ErrEntitlementNotFound = errors.New("会员记录不存在")
	ErrInvalidPlatform     = errors.New("不支持的平台")
	ErrInvalidTransition   = errors.New("当前订阅状态不允许该操作")
)

const (
	yearlyPeriod  = 365 * 24 * time.Hour
	monthlyPeriod = 30 * 24 * time.Hour

	defaultTrialDays          = 7
	defaultValidationInterval = 5 * time.Minute
	expireBatchSize           = 500
)

type EntitlementService struct {
	entRepo *repository.EntitlementRepository
	usage   *UsageService
	events  pubsub.EventPublisher
	metrics *metrics.Metrics
	cfg     *config.Config
	now     func() time.Time
}

func NewEntitlementService(
	entRepo *repository.EntitlementRepository,
	usage *UsageService,
	events pubsub.EventPublisher,
	m *metrics.Metrics,
	cfg *config.Config,
) *EntitlementService {
	if events == nil {
		events = pubsub.Nop{}
	}
	return &EntitlementService{
		entRepo: entRepo,
		usage:   usage,
		events:  events,
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PlanForProduct 根据商品 ID 推导套餐和时长
func PlanForProduct(productID string) (model.Plan, time.Duration) {
	if strings.Contains(strings.ToLower(productID), "yearly") {
		return model.PlanYearly, yearlyPeriod
	}
	return model.PlanMonthly, monthlyPeriod
}

// GetOrCreate 获取会员记录，不存在时创建 free 记录
func (s *EntitlementService) GetOrCreate(ctx context.Context, userID int64) (*model.Entitlement, error) {
	return s.entRepo.GetOrCreate(ctx, userID, s.now())
}

// refresh 有效期已过时先转为 expired 再返回最新记录
func (s *EntitlementService) refresh(ctx context.Context, ent *model.Entitlement) (*model.Entitlement, error) {
	now := s.now()
	if !ent.Elapsed(now) {
		return ent, nil
	}

	prev := ent.Status
	changed, err := s.entRepo.ExpireIfElapsed(ctx, ent.UserID, now)
	if err != nil {
		return nil, fmt.Errorf("expire entitlement: %w", err)
	}

	latest, err := s.entRepo.GetByUserID(ctx, ent.UserID)
	if err != nil {
		return nil, err
	}
	if changed {
		slog.Info("entitlement expired", slog.Int64("user_id", ent.UserID), slog.String("from", string(prev)))
		s.committed(ctx, prev, latest, pubsub.ReasonExpired)
	}
	return latest, nil
}

// current 获取或创建记录并执行读时过期检查
func (s *EntitlementService) current(ctx context.Context, userID int64) (*model.Entitlement, error) {
	ent, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, ent)
}

// existing 同 current，但记录必须已存在
func (s *EntitlementService) existing(ctx context.Context, userID int64) (*model.Entitlement, error) {
	ent, err := s.entRepo.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntitlementNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, ent)
}

// GetStatus 当前会员状态和可用功能
func (s *EntitlementService) GetStatus(ctx context.Context, userID int64) (*dto.StatusView, error) {
	ent, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &dto.StatusView{
		Status:       string(ent.Status),
		Plan:         string(ent.Plan),
		StartDate:    formatTime(&ent.StartDate),
		EndDate:      formatTime(ent.EndDate),
		TrialEndDate: formatTime(ent.TrialEndDate),
		IsActive:     ent.IsActive,
		Features:     policy.FeaturesFor(ent.Status),
	}, nil
}

// Validate 客户端定期调用的服务端状态确认
func (s *EntitlementService) Validate(ctx context.Context, userID int64) (*dto.ValidateView, error) {
	ent, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}

	interval := s.cfg.Premium.ValidationInterval
	if interval <= 0 {
		interval = defaultValidationInterval
	}
	now := s.now()
	return &dto.ValidateView{
		Status:         string(ent.Status),
		LastValidated:  now.Format(time.RFC3339),
		NextValidation: now.Add(interval).Format(time.RFC3339),
	}, nil
}

// CheckFeature 判断用户能否使用某个功能
func (s *EntitlementService) CheckFeature(ctx context.Context, userID int64, featureName string) (*dto.AccessDecision, error) {
	decision, err := s.decide(ctx, userID, featureName)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FeatureDecision(policy.Parse(featureName).String(), decision.CanAccess)
	}
	return decision, nil
}

func (s *EntitlementService) decide(ctx context.Context, userID int64, featureName string) (*dto.AccessDecision, error) {
	feature := policy.Parse(featureName)
	if !policy.Known(feature) {
		return &dto.AccessDecision{CanAccess: false, Feature: featureName, Limit: policy.LimitNotAvailable}, nil
	}

	ent, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	if policy.Grants(feature, ent.Status) {
		return &dto.AccessDecision{CanAccess: true, Feature: featureName, Limit: policy.LimitUnlimited}, nil
	}

	quota, ok := policy.QuotaFor(feature)
	if !ok {
		zero := 0
		return &dto.AccessDecision{CanAccess: false, Feature: featureName, RemainingUses: &zero, Limit: policy.LimitPremiumOnly}, nil
	}

	used, err := s.usage.Used(ctx, userID, feature, s.now())
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	left := remaining(quota.Limit, used)
	return &dto.AccessDecision{
		CanAccess:     left > 0,
		Feature:       featureName,
		RemainingUses: &left,
		Limit:         quota.Describe(),
	}, nil
}

// UsageStats 免费额度使用情况，付费/试用用户剩余次数为 nil
func (s *EntitlementService) UsageStats(ctx context.Context, userID int64) (*dto.UsageView, error) {
	ent, err := s.current(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	drills, err := s.usage.CustomDrillsThisMonth(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("count custom drills: %w", err)
	}
	sessions, err := s.usage.SessionsToday(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}

	view := &dto.UsageView{
		CustomDrillsUsed: drills,
		SessionsUsed:     sessions,
		IsPremium:        ent.Status.Grants(),
	}
	if !view.IsPremium {
		drillsLeft := remaining(policyLimit(policy.FeatureUnlimitedCustomDrills), drills)
		sessionsLeft := remaining(policyLimit(policy.FeatureUnlimitedSessions), sessions)
		view.CustomDrillsRemaining = &drillsLeft
		view.SessionsRemaining = &sessionsLeft
	}
	return view, nil
}

func policyLimit(f policy.Feature) int {
	q, _ := policy.QuotaFor(f)
	return q.Limit
}

// ApplyVerifiedPurchase 写入已校验的购买，整条记录在一个事务里更新
func (s *EntitlementService) ApplyVerifiedPurchase(
	ctx context.Context,
	userID int64,
	platform model.Platform,
	productID string,
	receiptRef string,
) (*model.Entitlement, error) {
	if _, ok := model.ParsePlatform(string(platform)); !ok {
		return nil, ErrInvalidPlatform
	}
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	plan, period := PlanForProduct(productID)
	var prev model.Status
	var updated *model.Entitlement

	err := s.entRepo.Transaction(ctx, func(tx *repository.EntitlementRepository) error {
		ent, err := tx.GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		prev = ent.Status

		now := s.now()
		end := now.Add(period)
		ent.Status = model.StatusPremium
		ent.Plan = plan
		ent.StartDate = now
		ent.EndDate = &end
		ent.IsActive = true
		ent.Platform = &platform
		ent.ReceiptReference = receiptRef
		ent.UpdatedAt = now
		if err := tx.Save(ctx, ent); err != nil {
			return err
		}
		updated = ent
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply purchase: %w", err)
	}

	slog.Info("premium purchase applied",
		slog.Int64("user_id", userID),
		slog.String("plan", string(plan)),
		slog.String("platform", string(platform)))
	s.committed(ctx, prev, updated, pubsub.ReasonPurchase)
	return updated, nil
}

// Cancel 取消订阅，记录保留为 expired
func (s *EntitlementService) Cancel(ctx context.Context, userID int64) (*model.Entitlement, error) {
	var prev model.Status
	var updated *model.Entitlement

	err := s.entRepo.Transaction(ctx, func(tx *repository.EntitlementRepository) error {
		ent, err := tx.GetByUserIDForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntitlementNotFound
		}
		if err != nil {
			return err
		}
		prev = ent.Status

		ent.Status = model.StatusExpired
		ent.IsActive = false
		ent.UpdatedAt = s.now()
		if err := tx.Save(ctx, ent); err != nil {
			return err
		}
		updated = ent
		return nil
	})
	if errors.Is(err, ErrEntitlementNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("cancel subscription: %w", err)
	}

	slog.Info("subscription cancelled", slog.Int64("user_id", userID), slog.String("from", string(prev)))
	s.committed(ctx, prev, updated, pubsub.ReasonCancel)
	return updated, nil
}

// StartTrial 开启试用，只有 free 用户可以开启
func (s *EntitlementService) StartTrial(ctx context.Context, userID int64) (*model.Entitlement, error) {
	if _, err := s.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	days := s.cfg.Premium.TrialDays
	if days <= 0 {
		days = defaultTrialDays
	}

	var updated *model.Entitlement
	err := s.entRepo.Transaction(ctx, func(tx *repository.EntitlementRepository) error {
		ent, err := tx.GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if ent.Status != model.StatusFree {
			return ErrInvalidTransition
		}

		now := s.now()
		trialEnd := now.AddDate(0, 0, days)
		ent.Status = model.StatusTrial
		ent.TrialEndDate = &trialEnd
		ent.IsActive = true
		ent.UpdatedAt = now
		if err := tx.Save(ctx, ent); err != nil {
			return err
		}
		updated = ent
		return nil
	})
	if errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}

	slog.Info("trial started", slog.Int64("user_id", userID), slog.Int("days", days))
	s.committed(ctx, model.StatusFree, updated, pubsub.ReasonTrial)
	return updated, nil
}

// ExpireStale 批量把到期的试用和订阅转为 expired，返回发生转换的用户
func (s *EntitlementService) ExpireStale(ctx context.Context) ([]int64, error) {
	now := s.now()
	ids, err := s.entRepo.ListElapsedUserIDs(ctx, now, expireBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list elapsed entitlements: %w", err)
	}

	expired := make([]int64, 0, len(ids))
	for _, userID := range ids {
		ent, err := s.entRepo.GetByUserID(ctx, userID)
		if err != nil {
			return expired, err
		}
		prev := ent.Status

		changed, err := s.entRepo.ExpireIfElapsed(ctx, userID, now)
		if err != nil {
			return expired, fmt.Errorf("expire user %d: %w", userID, err)
		}
		if !changed {
			continue
		}
		expired = append(expired, userID)

		if latest, err := s.entRepo.GetByUserID(ctx, userID); err == nil {
			s.committed(ctx, prev, latest, pubsub.ReasonExpired)
		}
	}

	if len(expired) > 0 {
		slog.Info("expired stale entitlements", slog.Int("count", len(expired)))
	}
	return expired, nil
}

// Details 订阅详情，记录必须已存在
func (s *EntitlementService) Details(ctx context.Context, userID int64) (*dto.SubscriptionDetails, error) {
	ent, err := s.existing(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := &dto.SubscriptionDetails{
		ID:           ent.ID,
		Status:       string(ent.Status),
		Plan:         string(ent.Plan),
		StartDate:    formatTime(&ent.StartDate),
		EndDate:      formatTime(ent.EndDate),
		TrialEndDate: formatTime(ent.TrialEndDate),
		IsActive:     ent.IsActive,
		IsTrial:      ent.Status == model.StatusTrial,
	}
	if ent.Platform != nil {
		p := string(*ent.Platform)
		details.Platform = &p
	}
	return details, nil
}

// StatusCounts 各状态的会员数量，用于指标
func (s *EntitlementService) StatusCounts(ctx context.Context) (map[string]int64, error) {
	return s.entRepo.CountByStatus(ctx)
}

// committed 事务提交后的通知，失败只记日志
func (s *EntitlementService) committed(ctx context.Context, prev model.Status, ent *model.Entitlement, reason string) {
	if s.metrics != nil {
		s.metrics.Transition(string(prev), string(ent.Status))
	}

	msg := &pubsub.EntitlementChanged{
		UserID:     ent.UserID,
		Status:     string(ent.Status),
		Plan:       string(ent.Plan),
		PrevStatus: string(prev),
		Reason:     reason,
		ExpiresAt:  formatTime(ent.EndDate),
		ChangedAt:  s.now(),
	}
	if err := s.events.PublishEntitlementChanged(ctx, msg); err != nil {
		slog.Warn("publish entitlement change", slog.Int64("user_id", ent.UserID), logging.Err(err))
	}
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
