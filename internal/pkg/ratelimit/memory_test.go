package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter()
	l.now = clock.Now
	ctx := context.Background()

	var results []bool
	for i := 0; i < 6; i++ {
		ok, err := l.Allow(ctx, 1, "verify_receipt", 5, time.Minute)
		require.NoError(t, err)
		results = append(results, ok)
	}
	assert.Equal(t, []bool{true, true, true, true, true, false}, results)

	// 恰好在窗口边界上，最早的请求仍在窗口内
	clock.Advance(time.Minute)
	ok, err := l.Allow(ctx, 1, "verify_receipt", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Nanosecond)
	ok, err = l.Allow(ctx, 1, "verify_receipt", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_RejectedCallsNotRecorded(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter()
	l.now = clock.Now
	ctx := context.Background()

	ok, _ := l.Allow(ctx, 1, "cancel", 1, time.Minute)
	require.True(t, ok)

	// 被拒绝的请求不会延长窗口
	for i := 0; i < 10; i++ {
		clock.Advance(5 * time.Second)
		ok, _ = l.Allow(ctx, 1, "cancel", 1, time.Minute)
		assert.False(t, ok)
	}

	clock.Advance(11 * time.Second)
	ok, _ = l.Allow(ctx, 1, "cancel", 1, time.Minute)
	assert.True(t, ok)
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	ok, _ := l.Allow(ctx, 1, "validate", 1, time.Minute)
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, 1, "validate", 1, time.Minute)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, 2, "validate", 1, time.Minute)
	assert.True(t, ok, "other user")
	ok, _ = l.Allow(ctx, 1, "cancel", 1, time.Minute)
	assert.True(t, ok, "other endpoint")
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := NewMemoryLimiter()
	ctx := context.Background()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, 1, "verify_receipt", 5, time.Minute); ok {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter()
	l.now = clock.Now
	ctx := context.Background()

	_, _ = l.Allow(ctx, 1, "validate", 5, time.Minute)
	_, _ = l.Allow(ctx, 2, "start_trial", 3, time.Hour)
	require.Equal(t, 2, l.size())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.size())
}
