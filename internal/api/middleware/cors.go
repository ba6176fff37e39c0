package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/bravo_premium_server/config"
)

// OriginAllowed 判断 Origin 是否在白名单中，WebSocket 握手也用它
func OriginAllowed(cfg config.CORSConfig, origin string) bool {
	allowed, _ := matchOrigin(cfg, origin)
	return allowed
}

// matchOrigin 精确匹配优先于 "*"
func matchOrigin(cfg config.CORSConfig, origin string) (allowed, wildcard bool) {
	for _, allowedOrigin := range cfg.AllowedOrigins {
		if origin == allowedOrigin {
			return true, false
		}
	}
	for _, allowedOrigin := range cfg.AllowedOrigins {
		if allowedOrigin == "*" {
			return true, true
		}
	}
	return false, false
}

// CORS 跨域中间件，通配来源不带凭证
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			switch allowed, wildcard := matchOrigin(cfg, origin); {
			case allowed && wildcard:
				c.Header("Access-Control-Allow-Origin", "*")
			case allowed:
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
		}

		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
