// Package ratelimit implements a keyed token-bucket admission limiter.
//
// Buckets are created lazily on first sight of a key and refilled on
// access: elapsed time since the last refill is converted to tokens at
// the steady-state rate and added up to the burst capacity. A request is
// admitted when at least one whole token is available.
package ratelimit

import (
	"context"
	"time"
)

// Limit describes the admission policy applied to every key.
type Limit struct {
	// RatePerMinute is the steady-state admission rate.
	RatePerMinute int

	// Burst is the bucket capacity: the maximum number of requests
	// admitted instantaneously from a full bucket.
	Burst int
}

// refillPerSecond returns the token refill rate in tokens per second.
func (l Limit) refillPerSecond() float64 {
	return float64(l.RatePerMinute) / 60.0
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed   bool
	Remaining int

	// RetryAfter is how long until one whole token accrues.
	// Zero when the request was allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
