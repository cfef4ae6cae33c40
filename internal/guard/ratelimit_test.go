package guard

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/synapsys-ai/edge-gateway/internal/ratelimit"
)

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	lastKey  string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (ratelimit.Decision, error) {
	s.lastKey = key
	return s.decision, s.err
}

func TestRateLimitGuard_Admits(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 4}}
	g := NewRateLimitGuard(limiter, discardLogger())

	req := NewRequest("203.0.113.9", nil)
	if v := g.Check(context.Background(), req); v.Rejected() {
		t.Fatalf("unexpected rejection: %+v", v)
	}
	if limiter.lastKey != "203.0.113.9" {
		t.Errorf("limiter keyed on %q, want caller key", limiter.lastKey)
	}
	if req.RateLimit == nil || req.RateLimit.Remaining != 4 {
		t.Error("decision not recorded on the request")
	}
}

func TestRateLimitGuard_Rejects(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false}}
	g := NewRateLimitGuard(limiter, discardLogger())

	v := g.Check(context.Background(), NewRequest("k", nil))
	if !v.Rejected() {
		t.Fatal("expected rejection")
	}
	if v.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", v.Status)
	}
	if v.InternalCode != CodeRateLimited {
		t.Errorf("InternalCode = %q, want %q", v.InternalCode, CodeRateLimited)
	}
}

func TestRateLimitGuard_FailsOpenOnBackendError(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis gone")}
	g := NewRateLimitGuard(limiter, discardLogger())

	req := NewRequest("k", nil)
	if v := g.Check(context.Background(), req); v.Rejected() {
		t.Errorf("backend failure must not reject requests, got %+v", v)
	}
	if req.RateLimit != nil {
		t.Error("no decision should be recorded on backend failure")
	}
}
