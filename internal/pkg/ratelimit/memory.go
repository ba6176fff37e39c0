package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	hits   []time.Time
	window time.Duration
}

// MemoryLimiter keeps all windows in process memory behind one mutex.
// Counts are per process: running N replicas multiplies the effective
// limit by N. Use RedisLimiter for shared limits.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID int64, endpoint string, limit int, window time.Duration) (bool, error) {
	now := l.now()
	key := bucketKey(userID, endpoint)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	b.window = window
	b.hits = prune(b.hits, now.Add(-window))

	if len(b.hits) >= limit {
		return false, nil
	}
	b.hits = append(b.hits, now)
	return true, nil
}

// prune drops hits strictly before cutoff. hits is sorted ascending.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}

// Sweep removes buckets with no hits left inside their window.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		b.hits = prune(b.hits, now.Add(-b.window))
		if len(b.hits) == 0 {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
