package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ratelimit"
	"github.com/qs3c/bravo_premium_server/internal/pkg/response"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

// RateLimit 按 (用户, 接口) 滑动窗口限流，必须放在 Auth 之后。
// 限流后端不可用时拒绝请求。
func RateLimit(
	limiter ratelimit.Limiter,
	audit *service.AuditService,
	m *metrics.Metrics,
	cfg config.RateLimitConfig,
	endpoint string,
) gin.HandlerFunc {
	rule := cfg.Rule(endpoint)

	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), userID, endpoint, rule.Limit, rule.Window)
		if err != nil {
			slog.Error("rate limiter unavailable", slog.String("endpoint", endpoint), logging.Err(err))
			response.AbortWithError(c, http.StatusServiceUnavailable, response.CodeServerError, "")
			return
		}
		if allowed {
			c.Next()
			return
		}

		if m != nil {
			m.RateLimited(endpoint)
		}
		err = audit.Log(c.Request.Context(), service.AuditEntry{
			UserID: &userID,
			Action: endpoint,
			Status: model.AuditStatusRateLimited,
			Meta:   RequestMeta(c),
			Details: map[string]interface{}{
				"limit":          rule.Limit,
				"window_seconds": int(rule.Window.Seconds()),
			},
		})
		if err != nil {
			response.ServerError(c, "")
			c.Abort()
			return
		}
		response.RateLimitError(c, "")
		c.Abort()
	}
}
