package handler

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/bravo_premium_server/internal/api/middleware"
	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/model/dto"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/response"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

type PremiumHandler struct {
	entitlements *service.EntitlementService
	purchases    *service.PurchaseService
	audit        *service.AuditService
}

func NewPremiumHandler(
	entitlements *service.EntitlementService,
	purchases *service.PurchaseService,
	audit *service.AuditService,
) *PremiumHandler {
	return &PremiumHandler{
		entitlements: entitlements,
		purchases:    purchases,
		audit:        audit,
	}
}

// Status 当前会员状态
// GET /api/premium/status
func (h *PremiumHandler) Status(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	view, err := h.entitlements.GetStatus(c.Request.Context(), userID)
	if err != nil {
		slog.Error("get premium status", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "获取会员状态失败")
		return
	}

	response.Success(c, view)
}

// Validate 服务端状态校验
// POST /api/premium/validate
func (h *PremiumHandler) Validate(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.ValidateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	view, err := h.entitlements.Validate(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrEntitlementNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		slog.Error("validate premium status", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "会员状态校验失败")
		return
	}

	slog.Debug("premium status validated",
		slog.Int64("user_id", userID),
		slog.String("app_version", req.AppVersion),
		slog.String("status", view.Status))
	response.Success(c, view)
}

// VerifyReceipt 校验收据，platform 由请求体指定
// POST /api/premium/verify-receipt
func (h *PremiumHandler) VerifyReceipt(c *gin.Context) {
	h.verify(c, "")
}

// VerifyAppStore POST /api/premium/verify-app-store
func (h *PremiumHandler) VerifyAppStore(c *gin.Context) {
	h.verify(c, model.PlatformIOS)
}

// VerifyGooglePlay POST /api/premium/verify-google-play
func (h *PremiumHandler) VerifyGooglePlay(c *gin.Context) {
	h.verify(c, model.PlatformAndroid)
}

func (h *PremiumHandler) verify(c *gin.Context, platform model.Platform) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if platform != "" {
		req.Platform = string(platform)
	}
	if req.Platform == "" {
		response.ParamError(c, "platform 不能为空")
		return
	}

	result, outcome, err := h.purchases.ValidatePurchase(c.Request.Context(), userID, &req, middleware.RequestMeta(c))
	if err != nil {
		slog.Error("validate purchase", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "收据校验失败")
		return
	}

	switch outcome {
	case service.OutcomeVerified:
		response.Success(c, result)
	case service.OutcomeTimeout:
		response.VerificationTimeoutError(c, "", result)
	default:
		response.VerificationError(c, result.Reason, result)
	}
}

// CheckFeature 功能访问检查
// POST /api/premium/check-feature
func (h *PremiumHandler) CheckFeature(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.FeatureAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	decision, err := h.entitlements.CheckFeature(c.Request.Context(), userID, req.Feature)
	if err != nil {
		slog.Error("check feature access", slog.Int64("user_id", userID), slog.String("feature", req.Feature), logging.Err(err))
		response.ServerError(c, "功能访问检查失败")
		return
	}

	response.Success(c, decision)
}

// UsageStats 免费额度使用情况
// GET /api/premium/usage-stats
func (h *PremiumHandler) UsageStats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	usage, err := h.entitlements.UsageStats(c.Request.Context(), userID)
	if err != nil {
		slog.Error("get usage stats", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "获取使用情况失败")
		return
	}

	response.Success(c, usage)
}

// Cancel 取消订阅
// POST /api/premium/cancel
func (h *PremiumHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	ent, err := h.entitlements.Cancel(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrEntitlementNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		slog.Error("cancel subscription", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "取消订阅失败")
		return
	}

	if !h.audited(c, userID, "cancel", map[string]interface{}{"plan": string(ent.Plan)}) {
		return
	}
	response.SuccessWithMessage(c, "订阅已取消", nil)
}

// StartTrial 开启试用
// POST /api/premium/start-trial
func (h *PremiumHandler) StartTrial(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	ent, err := h.entitlements.StartTrial(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidTransition) {
			response.TransitionError(c, "只有免费用户可以开启试用")
			return
		}
		slog.Error("start trial", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "开启试用失败")
		return
	}

	details := map[string]interface{}{}
	if ent.TrialEndDate != nil {
		details["trial_end_date"] = ent.TrialEndDate.Format(time.RFC3339)
	}
	if !h.audited(c, userID, "start_trial", details) {
		return
	}

	view, err := h.entitlements.GetStatus(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}
	response.SuccessWithMessage(c, "试用已开启", view)
}

// SubscriptionDetails 订阅详情
// GET /api/premium/subscription-details
func (h *PremiumHandler) SubscriptionDetails(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	details, err := h.entitlements.Details(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrEntitlementNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		slog.Error("get subscription details", slog.Int64("user_id", userID), logging.Err(err))
		response.ServerError(c, "获取订阅详情失败")
		return
	}

	response.Success(c, details)
}

// audited 写入成功操作的审计记录，失败时已写好错误响应
func (h *PremiumHandler) audited(c *gin.Context, userID int64, action string, details map[string]interface{}) bool {
	err := h.audit.Log(c.Request.Context(), service.AuditEntry{
		UserID:  &userID,
		Action:  action,
		Status:  model.AuditStatusSuccess,
		Meta:    middleware.RequestMeta(c),
		Details: details,
	})
	if err != nil {
		response.ServerError(c, "")
		return false
	}
	return true
}
