package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/synapsys-ai/edge-gateway/internal/ratelimit"
)

// CodeRateLimited is the internal code attached to 429 verdicts.
const CodeRateLimited = "RATE_LIMITED"

// RateLimitGuard rejects callers whose token bucket is empty.
type RateLimitGuard struct {
	limiter ratelimit.Limiter
	logger  *slog.Logger
}

func NewRateLimitGuard(limiter ratelimit.Limiter, logger *slog.Logger) *RateLimitGuard {
	return &RateLimitGuard{limiter: limiter, logger: logger}
}

func (g *RateLimitGuard) Name() string {
	return "ratelimit"
}

func (g *RateLimitGuard) Check(ctx context.Context, req *Request) Verdict {
	decision, err := g.limiter.Allow(ctx, req.Context.CallerKey)
	if err != nil {
		// A broken limiter backend must not take the gateway down with
		// it. Fail open and leave a trace.
		g.logger.Error("rate limiter unavailable, admitting request",
			slog.String("correlation_id", req.Context.CorrelationID),
			slog.String("error", err.Error()),
		)
		return Pass
	}

	req.RateLimit = &decision

	if !decision.Allowed {
		return Reject(http.StatusTooManyRequests, "rate limit exceeded, slow down", CodeRateLimited)
	}
	return Pass
}
