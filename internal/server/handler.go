package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/synapsys-ai/edge-gateway/internal/audit"
	"github.com/synapsys-ai/edge-gateway/internal/guard"
	"github.com/synapsys-ai/edge-gateway/internal/tokens"
	"github.com/synapsys-ai/edge-gateway/internal/upstream"
)

// maxBodyBytes bounds the inbound payload before the validator sees it.
// The character limit is enforced by the validator; this is a transport
// backstop against oversized bodies.
const maxBodyBytes = 1 << 20

// Internal codes recorded for terminal upstream outcomes.
const (
	codeOK                  = "OK"
	codeUpstreamClientError = "UPSTREAM_CLIENT_ERROR"
	codeUpstreamServerError = "UPSTREAM_SERVER_ERROR"
	codeNetworkFailure      = "NETWORK_FAILURE"
	codeInternal            = "INTERNAL"
)

// ChatHandler runs the guard chain over inbound chat requests and
// forwards admitted messages to the broker.
type ChatHandler struct {
	chain     *guard.Chain
	client    *upstream.Client
	recorder  audit.Recorder
	estimator *tokens.Estimator
	logger    *slog.Logger

	// burst is echoed as the X-RateLimit-Limit header.
	burst int
}

func NewChatHandler(chain *guard.Chain, client *upstream.Client, recorder audit.Recorder, burst int, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		chain:     chain,
		client:    client,
		recorder:  recorder,
		estimator: tokens.NewEstimator(),
		logger:    logger,
		burst:     burst,
	}
}

func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req := guard.NewRequest(callerKey(r), body)
	verdict := h.chain.Run(ctx, req)

	// Diagnostic trace key only; never part of the response payload.
	w.Header().Set("X-Request-ID", req.Context.CorrelationID)
	AddLogField(ctx, "correlation_id", req.Context.CorrelationID)

	h.writeRateLimitHeaders(w, req)

	if verdict.Rejected() {
		writeError(w, verdict.Status, verdict.UserMessage)
		h.record(ctx, req, verdict.InternalCode, verdict.Status, start)
		return
	}

	if n, err := h.estimator.Estimate(string(req.Message())); err == nil {
		AddLogField(ctx, "token_estimate", strconv.Itoa(n))
	}

	result := h.client.Send(ctx, req.Message())

	switch result.Outcome {
	case upstream.OutcomeSuccess:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Status)
		w.Write(result.Body)
		h.record(ctx, req, codeOK, result.Status, start)

	case upstream.OutcomeClientError:
		// The broker already enforces its own policy; pass it through.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(result.Status)
		w.Write(result.Body)
		h.record(ctx, req, codeUpstreamClientError, result.Status, start)

	case upstream.OutcomeServerError:
		h.logger.Error("upstream server error",
			slog.String("correlation_id", req.Context.CorrelationID),
			slog.Int("upstream_status", result.Status),
		)
		writeError(w, http.StatusServiceUnavailable, "upstream service unavailable")
		h.record(ctx, req, codeUpstreamServerError, http.StatusServiceUnavailable, start)

	case upstream.OutcomeNetworkFailure:
		h.logger.Error("upstream call failed",
			slog.String("correlation_id", req.Context.CorrelationID),
			slog.String("error", result.Err.Error()),
		)
		AddError(ctx, result.Err)
		writeError(w, http.StatusServiceUnavailable, "upstream service unavailable")
		h.record(ctx, req, codeNetworkFailure, http.StatusServiceUnavailable, start)

	default:
		writeError(w, http.StatusInternalServerError, "internal error")
		h.record(ctx, req, codeInternal, http.StatusInternalServerError, start)
	}
}

func (h *ChatHandler) writeRateLimitHeaders(w http.ResponseWriter, req *guard.Request) {
	rl := req.RateLimit
	if rl == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.burst))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	if !rl.Allowed && rl.RetryAfter > 0 {
		secs := int(rl.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
}

// record writes the terminal outcome to the access log. Best-effort: a
// failed write is logged and the response is unaffected.
func (h *ChatHandler) record(ctx context.Context, req *guard.Request, code string, status int, start time.Time) {
	entry := audit.Entry{
		CorrelationID: req.Context.CorrelationID,
		CallerKey:     req.Context.CallerKey,
		Code:          code,
		Status:        status,
		Duration:      time.Since(start),
	}
	if err := h.recorder.Record(ctx, entry); err != nil {
		h.logger.Warn("access-log write failed",
			slog.String("correlation_id", req.Context.CorrelationID),
			slog.String("error", err.Error()),
		)
	}
}

// HealthHandler reports process liveness and upstream reachability.
type HealthHandler struct {
	client *upstream.Client
}

func NewHealthHandler(client *upstream.Client) *HealthHandler {
	return &HealthHandler{client: client}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "upstream": "reachable"}
	if err := h.client.Probe(r.Context()); err != nil {
		status["upstream"] = "unreachable"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// callerKey derives the rate-limit key from the client network address,
// honoring the first X-Forwarded-For hop when present.
func callerKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
