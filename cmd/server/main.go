package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/api"
	"github.com/qs3c/bravo_premium_server/internal/api/handler"
	"github.com/qs3c/bravo_premium_server/internal/database"
	"github.com/qs3c/bravo_premium_server/internal/pkg/cron"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/pubsub"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ratelimit"
	"github.com/qs3c/bravo_premium_server/internal/pkg/receipt"
	"github.com/qs3c/bravo_premium_server/internal/pkg/ws"
	"github.com/qs3c/bravo_premium_server/internal/repository"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

var (
	configPath = flag.String("config", "", "Path to config file (default $CONFIG_PATH or config/config.yaml)")
	migrate    = flag.Bool("migrate", false, "Auto-migrate premium tables on startup")
)

func main() {
	flag.Parse()

	// 加载配置
	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Open(&cfg.Database)
	if err != nil {
		fatal("failed to connect database", err)
	}
	if *migrate {
		if err := database.Migrate(db); err != nil {
			fatal("failed to migrate", err)
		}
		slog.Info("database migrated")
	}
	sqlDB, err := db.DB()
	if err != nil {
		fatal("failed to get sql.DB", err)
	}
	defer sqlDB.Close()
	slog.Info("database connected", slog.String("driver", cfg.Database.Driver))

	// 初始化 Redis，可选
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			fatal("failed to connect redis", err)
		}
		defer rdb.Close()
		slog.Info("redis connected")
	}

	// 限流后端
	var (
		limiter ratelimit.Limiter
		sweeper cron.Sweeper
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		if rdb == nil {
			fatal("ratelimit backend redis requires redis.host", errors.New("redis not configured"))
		}
		limiter = ratelimit.NewRedisLimiter(rdb)
	default:
		mem := ratelimit.NewMemoryLimiter()
		limiter = mem
		sweeper = mem
	}

	// 收据校验器
	verifier, err := receipt.New(ctx, cfg)
	if err != nil {
		fatal("failed to init receipt verifier", err)
	}
	if cfg.Premium.TestMode {
		slog.Warn("receipt verification running in test mode")
	}

	m := metrics.New()
	wsHub := ws.NewHub()

	// 状态变化事件：有 Redis 时经 Redis 广播到所有实例，否则直接推给本实例的连接
	var events pubsub.EventPublisher = wsHub
	if rdb != nil {
		events = pubsub.NewPublisher(rdb)
	}

	// 初始化 Repository
	entRepo := repository.NewEntitlementRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// 初始化 Service
	auditService := service.NewAuditService(auditRepo)
	usageService := service.NewUsageService(usageRepo)
	entitlementService := service.NewEntitlementService(entRepo, usageService, events, m, cfg)
	purchaseService := service.NewPurchaseService(entitlementService, auditService, verifier, m, cfg)

	// 初始化 Handler
	premiumHandler := handler.NewPremiumHandler(entitlementService, purchaseService, auditService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS)

	// 初始化 Router
	router := api.NewRouter(
		premiumHandler,
		websocketHandler,
		auditService,
		limiter,
		m,
		sqlDB,
		cfg,
	)
	engine := router.Setup()

	// 定时任务
	cronService := cron.NewService(entitlementService, entitlementService, sweeper, m, cfg.Sweeper.Interval)
	cronService.Start()
	defer cronService.Stop()

	// 多实例部署时通过 Redis 转发状态变化到本实例的 WebSocket 连接
	if rdb != nil {
		go func() {
			err := pubsub.NewSubscriber(rdb).Subscribe(ctx, wsHub.NotifyEntitlementChanged)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("entitlement subscriber stopped", logging.Err(err))
			}
		}()
	}

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server stopped", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", logging.Err(err))
		}
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, logging.Err(err))
	os.Exit(1)
}
