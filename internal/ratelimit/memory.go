package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bucket holds the token balance for one key. Each bucket carries its own
// mutex so concurrent requests for the same key serialize on the
// refill-and-decrement while distinct keys never contend.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// MemoryLimiter is an in-process token-bucket limiter. The key space is
// capped with an LRU so the bucket map cannot grow without bound; evicting
// an idle key merely hands it a full bucket on next sight.
type MemoryLimiter struct {
	limit   Limit
	buckets *lru.Cache[string, *bucket]
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter holding at most maxKeys buckets.
func NewMemoryLimiter(limit Limit, maxKeys int) (*MemoryLimiter, error) {
	cache, err := lru.New[string, *bucket](maxKeys)
	if err != nil {
		return nil, err
	}
	return &MemoryLimiter{
		limit:   limit,
		buckets: cache,
		now:     time.Now,
	}, nil
}

// Allow performs one admission check for key. The error return exists to
// satisfy the Limiter interface shared with the Redis backend; the memory
// backend never fails.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	b := m.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := m.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed < 0 {
		elapsed = 0
	}

	b.tokens += elapsed.Seconds() * m.limit.refillPerSecond()
	if b.tokens > float64(m.limit.Burst) {
		b.tokens = float64(m.limit.Burst)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int(b.tokens)}, nil
	}

	missing := 1 - b.tokens
	wait := time.Duration(missing / m.limit.refillPerSecond() * float64(time.Second))
	return Decision{Allowed: false, Remaining: 0, RetryAfter: wait}, nil
}

// bucketFor returns the bucket for key, creating a full one on first sight.
func (m *MemoryLimiter) bucketFor(key string) *bucket {
	if b, ok := m.buckets.Get(key); ok {
		return b
	}
	fresh := &bucket{tokens: float64(m.limit.Burst), lastRefill: m.now()}
	if prev, ok, _ := m.buckets.PeekOrAdd(key, fresh); ok {
		// Another request created the bucket first.
		return prev
	}
	return fresh
}

// Len reports how many keys currently hold a bucket.
func (m *MemoryLimiter) Len() int {
	return m.buckets.Len()
}
