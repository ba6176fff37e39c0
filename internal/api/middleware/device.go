package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/pkg/response"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

const (
	DeviceFingerprintHeader = "Device-Fingerprint"
	DeviceFingerprintKey    = "deviceFingerprint"

	maxFingerprintLen = model.AuditFingerprintMaxLen
)

// RequestMeta 从请求中提取审计字段
func RequestMeta(c *gin.Context) service.RequestMeta {
	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = c.Request.URL.Path
	}
	return service.RequestMeta{
		Endpoint:          endpoint,
		Method:            c.Request.Method,
		IPAddress:         c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
		DeviceFingerprint: c.GetString(DeviceFingerprintKey),
	}
}

func auditUser(c *gin.Context) *int64 {
	if id, ok := GetUserID(c); ok {
		return &id
	}
	return nil
}

// DeviceFingerprint 所有会员接口都必须携带设备标识，缺失时审计并拒绝
func DeviceFingerprint(audit *service.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		fingerprint := strings.TrimSpace(c.GetHeader(DeviceFingerprintHeader))
		if fingerprint == "" || len(fingerprint) > maxFingerprintLen {
			err := audit.Log(c.Request.Context(), service.AuditEntry{
				UserID: auditUser(c),
				Action: "device_check",
				Status: model.AuditStatusBlockedMissingFingerprint,
				Meta:   RequestMeta(c),
			})
			if err != nil {
				response.ServerError(c, "")
				c.Abort()
				return
			}
			response.PreconditionError(c, "缺少设备标识")
			c.Abort()
			return
		}

		c.Set(DeviceFingerprintKey, fingerprint)
		c.Next()
	}
}
