// Package ratelimit implements per-user, per-endpoint sliding-window
// admission control.
//
// A call is admitted when fewer than limit admitted calls fall inside
// (now-window, now]; timestamps older than now-window are discarded
// first. Rejected calls are not recorded.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Limiter decides whether one more call may proceed.
type Limiter interface {
	Allow(ctx context.Context, userID int64, endpoint string, limit int, window time.Duration) (bool, error)
}

func bucketKey(userID int64, endpoint string) string {
	return fmt.Sprintf("%s:%d", endpoint, userID)
}
