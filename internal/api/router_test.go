package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/api/handler"
	"github.com/qs3c/bravo_premium_server/internal/model"
	"github.com/qs3c/bravo_premium_server/internal/pkg/jwt"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/pubsub"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ratelimit"
	"github.com/qs3c/bravo_premium_server/internal/pkg/receipt"
	"github.com/qs3c/bravo_premium_server/internal/pkg/response"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ws"
	"github.com/qs3c/bravo_premium_server/internal/repository"
	"github.com/qs3c/bravo_premium_server/internal/service"
	"github.com/qs3c/bravo_premium_server/internal/testutil"
)

const routerSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func setupRouter(t *testing.T, db Pinger) (*gin.Engine, *gorm.DB) {
	t.Helper()
	engine, gdb, _ := setupRouterWithHub(t, db)
	return engine, gdb
}

// setupRouterWithHub 与未配置 Redis 时的 cmd/server 一致，Hub 直接作为事件发布者
func setupRouterWithHub(t *testing.T, db Pinger) (*gin.Engine, *gorm.DB, *ws.Hub) {
	t.Helper()

	gdb := testutil.SetupTestDB(t)
	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: routerSecret},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Premium: config.PremiumConfig{TrialDays: 7},
		RateLimit: config.RateLimitConfig{
			Rules: map[string]config.RateLimitRule{
				"verify_receipt": {Limit: 5, Window: time.Minute},
			},
		},
	}
	m := metrics.New()
	hub := ws.NewHub()

	audit := service.NewAuditService(repository.NewAuditRepository(gdb))
	entitlements := service.NewEntitlementService(
		repository.NewEntitlementRepository(gdb),
		service.NewUsageService(repository.NewUsageRepository(gdb)),
		hub,
		m,
		cfg,
	)
	purchases := service.NewPurchaseService(entitlements, audit, receipt.NewSimulatedVerifier(), m, cfg)

	router := NewRouter(
		handler.NewPremiumHandler(entitlements, purchases, audit),
		handler.NewWebSocketHandler(hub, cfg.JWT.Secret, cfg.CORS),
		audit,
		ratelimit.NewMemoryLimiter(),
		m,
		db,
		cfg,
	)
	return router.Setup(), gdb, hub
}

func authedRequest(t *testing.T, method, path, body, fingerprint string) *http.Request {
	t.Helper()

	token, err := jwt.GenerateToken(10, "player@bravoball.app", routerSecret, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if fingerprint != "" {
		req.Header.Set("Device-Fingerprint", fingerprint)
	}
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouter_MissingFingerprintBeforeBusinessLogic(t *testing.T) {
	engine, db := setupRouter(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(t, "GET", "/api/premium/status", "", ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodePreconditionFailed, decode(t, w).Code)
	assert.Equal(t, int64(1), testutil.AuditCount(t, db, model.AuditStatusBlockedMissingFingerprint))

	// no entitlement row was created
	var count int64
	require.NoError(t, db.Model(&model.Entitlement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRouter_Unauthenticated(t *testing.T) {
	engine, _ := setupRouter(t, nil)

	req := httptest.NewRequest("GET", "/api/premium/status", nil)
	req.Header.Set("Device-Fingerprint", "device-1")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, response.CodeAuthFailed, decode(t, w).Code)
}

func TestRouter_VerifyRateLimitedAcrossRoutes(t *testing.T) {
	engine, db := setupRouter(t, nil)
	body := `{"receiptData":"r","productId":"bravoball_premium_monthly","transactionId":"t1"}`

	paths := []string{
		"/api/premium/verify-app-store",
		"/api/premium/verify-google-play",
		"/api/premium/verify-app-store",
		"/api/premium/verify-google-play",
		"/api/premium/verify-app-store",
		"/api/premium/verify-google-play",
	}

	var statuses []int
	for _, p := range paths {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, authedRequest(t, "POST", p, body, "device-1"))
		statuses = append(statuses, w.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 200, 200, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, int64(1), testutil.AuditCount(t, db, model.AuditStatusRateLimited))
	assert.Equal(t, int64(5), testutil.AuditCount(t, db, model.AuditStatusSuccess))
}

func TestRouter_StatusFlow(t *testing.T) {
	engine, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(t, "GET", "/api/premium/status", "", "device-1"))

	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "free", data["status"])
}

func TestRouter_Metrics(t *testing.T) {
	engine, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authedRequest(t, "POST", "/api/premium/check-feature", `{"feature":"noAds"}`, "device-1"))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `bravo_premium_feature_decisions_total{allowed="false",feature="noAds"} 1`)
}

func TestRouter_Healthz(t *testing.T) {
	engine, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	engine, _ = setupRouter(t, downDB{})
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_PushesChangesWithoutRedis(t *testing.T) {
	engine, _, hub := setupRouterWithHub(t, nil)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	token, err := jwt.GenerateToken(10, "player@bravoball.app", routerSecret, 1)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.IsOnline(10) }, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/premium/start-trial", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Device-Fingerprint", "device-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string                    `json:"type"`
		Data pubsub.EntitlementChanged `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, int64(10), msg.Data.UserID)
	assert.Equal(t, "trial", msg.Data.Status)
	assert.Equal(t, pubsub.ReasonTrial, msg.Data.Reason)
}
