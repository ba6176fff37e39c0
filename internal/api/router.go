package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/api/handler"
	"github.com/qs3c/bravo_premium_server/internal/api/middleware"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ratelimit"
	"github.com/qs3c/bravo_premium_server/internal/pkg/response"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

// Pinger 健康检查依赖，*sql.DB 满足该接口
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Router struct {
	premiumHandler   *handler.PremiumHandler
	websocketHandler *handler.WebSocketHandler
	audit            *service.AuditService
	limiter          ratelimit.Limiter
	metrics          *metrics.Metrics
	db               Pinger
	cfg              *config.Config
}

func NewRouter(
	premiumHandler *handler.PremiumHandler,
	websocketHandler *handler.WebSocketHandler,
	audit *service.AuditService,
	limiter ratelimit.Limiter,
	m *metrics.Metrics,
	db Pinger,
	cfg *config.Config,
) *Router {
	return &Router{
		premiumHandler:   premiumHandler,
		websocketHandler: websocketHandler,
		audit:            audit,
		limiter:          limiter,
		metrics:          m,
		db:               db,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthz)
	if r.cfg.Metrics.Enabled && r.metrics != nil {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(r.metrics.Handler()))
	}

	// WebSocket 推送会员状态变化
	if r.websocketHandler != nil {
		engine.GET("/api/v1/ws", r.websocketHandler.Handle)
	}

	// 认证 -> 设备标识 -> 限流 -> handler
	premium := engine.Group("/api/premium")
	premium.Use(middleware.Auth(r.cfg.JWT.Secret))
	premium.Use(middleware.DeviceFingerprint(r.audit))
	{
		h := r.premiumHandler
		premium.GET("/status", r.limit("status"), h.Status)
		premium.POST("/validate", r.limit("validate"), h.Validate)
		premium.POST("/verify-receipt", r.limit("verify_receipt"), h.VerifyReceipt)
		premium.POST("/verify-app-store", r.limit("verify_receipt"), h.VerifyAppStore)
		premium.POST("/verify-google-play", r.limit("verify_receipt"), h.VerifyGooglePlay)
		premium.POST("/check-feature", r.limit("check_feature"), h.CheckFeature)
		premium.GET("/usage-stats", r.limit("usage_stats"), h.UsageStats)
		premium.POST("/cancel", r.limit("cancel"), h.Cancel)
		premium.POST("/start-trial", r.limit("start_trial"), h.StartTrial)
		premium.GET("/subscription-details", r.limit("subscription_details"), h.SubscriptionDetails)
	}

	return engine
}

func (r *Router) limit(endpoint string) gin.HandlerFunc {
	return middleware.RateLimit(r.limiter, r.audit, r.metrics, r.cfg.RateLimit, endpoint)
}

func (r *Router) healthz(c *gin.Context) {
	if r.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.db.PingContext(ctx); err != nil {
			response.ErrorWithStatus(c, http.StatusServiceUnavailable, response.CodeServerError, "database unavailable")
			return
		}
	}
	response.Success(c, gin.H{"status": "ok"})
}
