package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/qs3c/bravo_premium_server/config"
	"github.com/qs3c/bravo_premium_server/internal/database"
	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
	"github.com/qs3c/bravo_premium_server/internal/pkg/pubsub"
	"github.com/qs3c/bravo_premium_server/internal/repository"
	"github.com/qs3c/bravo_premium_server/internal/service"
)

var (
	dryRun  = flag.Bool("dry-run", false, "Only count elapsed trials and subscriptions, don't update them")
	timeout = flag.Duration("timeout", 5*time.Minute, "Overall timeout for the run")
)

// 单次执行的过期转换任务，适合由外部 cron 调度
func main() {
	flag.Parse()

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		slog.Error("failed to connect database", logging.Err(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	entRepo := repository.NewEntitlementRepository(db)

	if *dryRun {
		// -1 取消 LIMIT
		ids, err := entRepo.ListElapsedUserIDs(ctx, time.Now().UTC(), -1)
		if err != nil {
			slog.Error("failed to list elapsed entitlements", logging.Err(err))
			os.Exit(1)
		}
		slog.Info("dry run", slog.Int("elapsed", len(ids)))
		return
	}

	// 独立进程内没有 WebSocket 连接，事件交给 Redis 转发给 API 实例
	var events pubsub.EventPublisher = pubsub.Nop{}
	if cfg.Redis.Host != "" {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, change events will not be published", logging.Err(err))
		} else {
			defer rdb.Close()
			events = pubsub.NewPublisher(rdb)
		}
	}

	usageService := service.NewUsageService(repository.NewUsageRepository(db))
	entitlementService := service.NewEntitlementService(entRepo, usageService, events, metrics.New(), cfg)

	// 每次最多处理一批，直到没有可转换的记录
	start := time.Now()
	total := 0
	for {
		expired, err := entitlementService.ExpireStale(ctx)
		total += len(expired)
		if err != nil {
			slog.Error("expire run failed", logging.Err(err), slog.Int("expired", total))
			os.Exit(1)
		}
		if len(expired) == 0 {
			break
		}
	}
	slog.Info("expire run finished",
		slog.Int("expired", total),
		slog.Duration("elapsed", time.Since(start)),
	)
}
