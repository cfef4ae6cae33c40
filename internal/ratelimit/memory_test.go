package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, limit Limit, maxKeys int) *MemoryLimiter {
	t.Helper()
	m, err := NewMemoryLimiter(limit, maxKeys)
	if err != nil {
		t.Fatalf("NewMemoryLimiter: %v", err)
	}
	return m
}

// advance pins the limiter clock and returns a function that moves it.
func advance(m *MemoryLimiter) func(d time.Duration) {
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestMemoryLimiter_BurstThenReject(t *testing.T) {
	m := newTestLimiter(t, Limit{RatePerMinute: 60, Burst: 5}, 16)
	advance(m) // zero elapsed time between requests

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := m.Allow(ctx, "caller")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d unexpectedly rejected", i+1)
		}
	}

	d, _ := m.Allow(ctx, "caller")
	if d.Allowed {
		t.Error("request after burst exhaustion was admitted")
	}
	if d.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", d.RetryAfter)
	}
}

func TestMemoryLimiter_RefillGrantsOneToken(t *testing.T) {
	m := newTestLimiter(t, Limit{RatePerMinute: 60, Burst: 3}, 16)
	tick := advance(m)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.Allow(ctx, "caller")
	}

	// 60/min refills one token per second.
	tick(time.Second)

	d, _ := m.Allow(ctx, "caller")
	if !d.Allowed {
		t.Fatal("expected one token after refill interval")
	}

	d, _ = m.Allow(ctx, "caller")
	if d.Allowed {
		t.Error("second request after single-token refill was admitted")
	}
}

func TestMemoryLimiter_TokensNeverExceedBurst(t *testing.T) {
	m := newTestLimiter(t, Limit{RatePerMinute: 600, Burst: 2}, 16)
	tick := advance(m)

	ctx := context.Background()
	m.Allow(ctx, "caller")

	// Far more elapsed time than needed to refill; cap must hold.
	tick(time.Hour)

	admitted := 0
	for i := 0; i < 10; i++ {
		if d, _ := m.Allow(ctx, "caller"); d.Allowed {
			admitted++
		}
	}
	if admitted != 2 {
		t.Errorf("admitted %d after long idle, want burst capacity 2", admitted)
	}
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	m := newTestLimiter(t, Limit{RatePerMinute: 60, Burst: 1}, 16)
	advance(m)

	ctx := context.Background()
	if d, _ := m.Allow(ctx, "a"); !d.Allowed {
		t.Fatal("first request for key a rejected")
	}
	if d, _ := m.Allow(ctx, "a"); d.Allowed {
		t.Fatal("second request for key a admitted")
	}
	if d, _ := m.Allow(ctx, "b"); !d.Allowed {
		t.Error("exhausting key a affected key b")
	}
}

func TestMemoryLimiter_ConcurrentSameKey(t *testing.T) {
	const burst = 10
	m := newTestLimiter(t, Limit{RatePerMinute: 1, Burst: burst}, 16)
	// Near-zero refill rate so only the initial burst is available.

	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.Allow(ctx, "caller")
			if err != nil {
				t.Errorf("Allow: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != burst {
		t.Errorf("admitted %d concurrent requests, want exactly %d", admitted, burst)
	}
}

func TestMemoryLimiter_KeyCapBounded(t *testing.T) {
	m := newTestLimiter(t, Limit{RatePerMinute: 60, Burst: 1}, 8)
	advance(m)

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		m.Allow(ctx, string(rune('a'+i%26))+string(rune('0'+i/26)))
	}

	if m.Len() > 8 {
		t.Errorf("bucket map holds %d keys, cap is 8", m.Len())
	}
}
