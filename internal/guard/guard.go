// Package guard implements the admission pipeline every inbound request
// passes through before it may reach the upstream broker.
//
// Guards are evaluated in order and each returns a tagged verdict: pass,
// or reject with an HTTP status, a user-safe message and an internal
// code. The chain short-circuits on the first rejection; guards after it
// are never invoked.
package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/synapsys-ai/edge-gateway/internal/ratelimit"
)

// RequestContext identifies one inbound request for the lifetime of its
// handling. It is created at chain entry, tagged with a correlation id by
// the identity guard, and treated as immutable afterwards.
type RequestContext struct {
	CorrelationID string
	CallerKey     string
	ArrivedAt     time.Time
}

// ValidatedMessage is a message that passed validation: non-empty after
// trimming and within the configured length bound. Only the validator
// guard produces values of this type.
type ValidatedMessage string

// Request is the guard chain's view of one inbound request. It threads
// the shared RequestContext plus the raw payload through the guards, and
// collects their per-request outputs.
type Request struct {
	Context *RequestContext
	Body    []byte

	// RateLimit is the admission decision recorded by the rate-limit
	// guard, used for response headers. Nil until that guard runs.
	RateLimit *ratelimit.Decision

	message ValidatedMessage
}

// NewRequest creates the chain input for one inbound request.
func NewRequest(callerKey string, body []byte) *Request {
	return &Request{
		Context: &RequestContext{
			CallerKey: callerKey,
			ArrivedAt: time.Now(),
		},
		Body: body,
	}
}

// Message returns the validated message. Empty until the validator guard
// has passed the request.
func (r *Request) Message() ValidatedMessage {
	return r.message
}

// Verdict is the outcome of one guard evaluation. The zero value means
// the guard passed the request through.
type Verdict struct {
	Status       int
	UserMessage  string
	InternalCode string
}

// Pass is the verdict of a guard that admits the request.
var Pass = Verdict{}

// Rejected reports whether the verdict terminates the request.
func (v Verdict) Rejected() bool {
	return v.Status != 0
}

// Reject builds a terminal verdict.
func Reject(status int, userMessage, internalCode string) Verdict {
	return Verdict{Status: status, UserMessage: userMessage, InternalCode: internalCode}
}

// Guard is a single admission check.
type Guard interface {
	Name() string
	Check(ctx context.Context, req *Request) Verdict
}

// Chain evaluates guards in order and stops at the first rejection.
// Ordering is load-bearing: identity tagging runs first so rejections
// stay traceable, rate limiting before validation so abusive volume is
// rejected before the payload is parsed.
type Chain struct {
	guards []Guard
	logger *slog.Logger
}

// NewChain builds a chain over the given guards.
func NewChain(logger *slog.Logger, guards ...Guard) *Chain {
	return &Chain{guards: guards, logger: logger}
}

// Run threads req through every guard. It returns the zero verdict when
// all guards pass, otherwise the rejecting guard's verdict.
func (c *Chain) Run(ctx context.Context, req *Request) Verdict {
	for _, g := range c.guards {
		verdict := g.Check(ctx, req)
		if verdict.Rejected() {
			c.logger.Info("request rejected",
				slog.String("guard", g.Name()),
				slog.String("correlation_id", req.Context.CorrelationID),
				slog.String("caller_key", req.Context.CallerKey),
				slog.String("code", verdict.InternalCode),
				slog.Int("status", verdict.Status),
			)
			return verdict
		}
	}
	return Pass
}
