package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/qs3c/bravo_premium_server/internal/pkg/logging"
	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
)

// Expirer 批量转换到期的试用和订阅
type Expirer interface {
	ExpireStale(ctx context.Context) ([]int64, error)
}

// StatusCounter 统计各状态会员数量
type StatusCounter interface {
	StatusCounts(ctx context.Context) (map[string]int64, error)
}

// Sweeper 清理空闲的限流窗口
type Sweeper interface {
	Sweep() int
}

type Service struct {
	expirer  Expirer
	counter  StatusCounter
	sweeper  Sweeper
	metrics  *metrics.Metrics
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService sweeper 和 metrics 可以为 nil
func NewService(
	expirer Expirer,
	counter StatusCounter,
	sweeper Sweeper,
	m *metrics.Metrics,
	interval time.Duration,
) *Service {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Service{
		expirer:  expirer,
		counter:  counter,
		sweeper:  sweeper,
		metrics:  m,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动定时任务，启动时先执行一次
func (s *Service) Start() {
	go s.run()
	slog.Info("cron service started", slog.Duration("interval", s.interval))
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		slog.Info("cron service stopped")
	})
}

func (s *Service) run() {
	s.tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	if err := s.RunNow(ctx); err != nil {
		slog.Error("cron run failed", logging.Err(err))
	}
}

// RunNow 立即执行一轮：过期转换、限流窗口清理、指标刷新
func (s *Service) RunNow(ctx context.Context) error {
	expired, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		slog.Info("expired entitlements", slog.Int("count", len(expired)))
	}

	if s.sweeper != nil {
		if removed := s.sweeper.Sweep(); removed > 0 {
			slog.Debug("swept idle rate limit windows", slog.Int("removed", removed))
		}
	}

	if s.counter != nil && s.metrics != nil {
		counts, err := s.counter.StatusCounts(ctx)
		if err != nil {
			return err
		}
		s.metrics.SetEntitlements(counts)
	}
	return nil
}
