package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	redisKeyPrefix = "ratelimit:"
	maxTxRetries   = 5
)

var ErrContention = errors.New("ratelimit: too much contention on key")

// RedisLimiter stores each window as a sorted set scored by admission
// time in microseconds, so limits hold across server instances.
type RedisLimiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, userID int64, endpoint string, limit int, window time.Duration) (bool, error) {
	const op = "ratelimit.RedisLimiter.Allow"

	key := redisKeyPrefix + bucketKey(userID, endpoint)

	for i := 0; i < maxTxRetries; i++ {
		allowed, err := l.try(ctx, key, limit, window)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return allowed, nil
	}
	return false, fmt.Errorf("%s: %w", op, ErrContention)
}

func (l *RedisLimiter) try(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	allowed := false

	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		now := l.now()
		nowScore := now.UnixMicro()
		cutoff := strconv.FormatInt(now.Add(-window).UnixMicro(), 10)

		count, err := tx.ZCount(ctx, key, cutoff, "+inf").Result()
		if err != nil {
			return err
		}
		if count >= int64(limit) {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
			pipe.ZAdd(ctx, key, &redis.Z{
				Score:  float64(nowScore),
				Member: strconv.FormatInt(nowScore, 10) + "-" + uuid.NewString(),
			})
			pipe.PExpire(ctx, key, window)
			return nil
		})
		if err != nil {
			return err
		}
		allowed = true
		return nil
	}, key)

	return allowed, err
}
