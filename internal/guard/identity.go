package guard

import (
	"context"

	"github.com/google/uuid"
)

// IdentityGuard assigns a fresh correlation identifier to the request
// context. It always passes; it exists so every later guard and log line
// can reference the same id.
type IdentityGuard struct{}

func NewIdentityGuard() *IdentityGuard {
	return &IdentityGuard{}
}

func (g *IdentityGuard) Name() string {
	return "identity"
}

func (g *IdentityGuard) Check(_ context.Context, req *Request) Verdict {
	req.Context.CorrelationID = uuid.New().String()
	return Pass
}
