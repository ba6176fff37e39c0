package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/model/dto"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/receipt"
)

// PurchaseOutcome 收据校验的业务结果，与基础设施错误分开返回
type PurchaseOutcome string

const (
	OutcomeVerified PurchaseOutcome = "verified"
	OutcomeRejected PurchaseOutcome = "rejected"
	OutcomeTimeout  PurchaseOutcome = "timeout"
)

const ActionValidatePurchase = "validate_purchase"

type PurchaseService struct {
	entitlements *EntitlementService
	audit        *AuditService
	verifier     receipt.Verifier
	metrics      *metrics.Metrics
	hashKey      []byte
}

func NewPurchaseService(
	entitlements *EntitlementService,
	audit *AuditService,
	verifier receipt.Verifier,
	m *metrics.Metrics,
	cfg *config.Config,
) *PurchaseService {
	return &PurchaseService{
		entitlements: entitlements,
		audit:        audit,
		verifier:     verifier,
		metrics:      m,
		hashKey:      []byte(cfg.Premium.ReceiptHashKey),
	}
}

// ValidatePurchase 向商店校验收据，通过后写入会员记录。
// 校验期间不持有任何锁，拒绝和超时都会写一条审计记录。
// 返回 error 只表示审计或数据库失败。
func (s *PurchaseService) ValidatePurchase(
	ctx context.Context,
	userID int64,
	req *dto.PurchaseRequest,
	meta RequestMeta,
) (*dto.PurchaseResult, PurchaseOutcome, error) {
	details := map[string]interface{}{
		"platform":       req.Platform,
		"product_id":     req.ProductID,
		"transaction_id": req.TransactionID,
	}

	platform, ok := model.ParsePlatform(req.Platform)
	if !ok {
		return s.reject(ctx, userID, req.Platform, "unsupported platform", details, meta)
	}

	res, err := s.verifier.Verify(ctx, receipt.Request{
		Platform:      platform,
		ReceiptData:   req.ReceiptData,
		ProductID:     req.ProductID,
		TransactionID: req.TransactionID,
	})
	switch {
	case errors.Is(err, receipt.ErrTimeout):
		s.record(req.Platform, OutcomeTimeout)
		details["reason"] = err.Error()
		if err := s.audit.Log(ctx, AuditEntry{
			UserID:  userRef(userID),
			Action:  ActionValidatePurchase,
			Status:  model.AuditStatusVerificationTimeout,
			Meta:    meta,
			Details: details,
		}); err != nil {
			return nil, "", err
		}
		slog.Warn("receipt verification timed out", slog.Int64("user_id", userID), slog.String("platform", req.Platform))
		return &dto.PurchaseResult{Verified: false, Platform: req.Platform, Reason: "verification timed out"}, OutcomeTimeout, nil
	case err != nil:
		slog.Warn("receipt verification failed", slog.Int64("user_id", userID), logging.Err(err))
		return s.reject(ctx, userID, req.Platform, err.Error(), details, meta)
	case !res.Verified:
		return s.reject(ctx, userID, req.Platform, res.Reason, details, meta)
	}

	ref := receipt.Reference(s.hashKey, req.ReceiptData, req.TransactionID)
	ent, err := s.entitlements.ApplyVerifiedPurchase(ctx, userID, platform, req.ProductID, ref)
	if err != nil {
		details["reason"] = err.Error()
		auditErr := s.audit.Log(ctx, AuditEntry{
			UserID:  userRef(userID),
			Action:  ActionValidatePurchase,
			Status:  model.AuditStatusError,
			Meta:    meta,
			Details: details,
		})
		return nil, "", errors.Join(err, auditErr)
	}

	s.record(req.Platform, OutcomeVerified)
	details["plan"] = string(ent.Plan)
	details["subscription_status"] = res.SubscriptionStatus
	if err := s.audit.Log(ctx, AuditEntry{
		UserID:  userRef(userID),
		Action:  ActionValidatePurchase,
		Status:  model.AuditStatusSuccess,
		Meta:    meta,
		Details: details,
	}); err != nil {
		return nil, "", err
	}

	result := &dto.PurchaseResult{
		Verified:           true,
		SubscriptionStatus: string(ent.Status),
		Platform:           string(platform),
		Plan:               string(ent.Plan),
	}
	if ent.EndDate != nil {
		result.ExpiresAt = ent.EndDate.UTC().Format(time.RFC3339)
	}
	return result, OutcomeVerified, nil
}

func (s *PurchaseService) reject(
	ctx context.Context,
	userID int64,
	platform string,
	reason string,
	details map[string]interface{},
	meta RequestMeta,
) (*dto.PurchaseResult, PurchaseOutcome, error) {
	if reason == "" {
		reason = "receipt not verified"
	}
	s.record(platform, OutcomeRejected)
	details["reason"] = reason

	if err := s.audit.Log(ctx, AuditEntry{
		UserID:  userRef(userID),
		Action:  ActionValidatePurchase,
		Status:  model.AuditStatusVerificationFailed,
		Meta:    meta,
		Details: details,
	}); err != nil {
		return nil, "", fmt.Errorf("audit rejected purchase: %w", err)
	}
	return &dto.PurchaseResult{Verified: false, Platform: platform, Reason: reason}, OutcomeRejected, nil
}

func (s *PurchaseService) record(platform string, outcome PurchaseOutcome) {
	if s.metrics != nil {
		s.metrics.ReceiptVerification(platform, string(outcome))
	}
}
