package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed token_bucket.lua
var tokenBucketScript string

// RedisLimiter shares bucket state across gateway instances through Redis.
// The refill-and-decrement runs as a single Lua script so the per-key
// update stays atomic without client-side locking.
type RedisLimiter struct {
	limit     Limit
	client    *redis.Client
	scriptSHA string
}

// NewRedisLimiter loads the bucket script and verifies connectivity.
func NewRedisLimiter(client *redis.Client, limit Limit) (*RedisLimiter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, tokenBucketScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load bucket script: %w", err)
	}

	return &RedisLimiter{limit: limit, client: client, scriptSHA: sha}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := float64(time.Now().UnixMicro()) / 1e6

	result, err := r.client.EvalSha(ctx, r.scriptSHA, []string{"ratelimit:" + key},
		r.limit.refillPerSecond(),
		r.limit.Burst,
		now,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("bucket script: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected bucket script reply %T", result)
	}

	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	retryAfter := 0.0
	if s, ok := values[2].(string); ok {
		retryAfter, _ = strconv.ParseFloat(s, 64)
	}

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryAfter * float64(time.Second)),
	}, nil
}
