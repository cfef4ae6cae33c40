// Package upstream implements the signed client for the SynapSys broker
// and the classification of its responses.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/synapsys-ai/edge-gateway/internal/guard"
	"github.com/synapsys-ai/edge-gateway/internal/signing"
)

const chatPath = "/api/v1/chat"

// Signing headers carried on every outbound call.
const (
	HeaderSender    = "X-SynapSys-Sender"
	HeaderTimestamp = "X-SynapSys-Timestamp"
	HeaderNonce     = "X-SynapSys-Nonce"
	HeaderSignature = "X-SynapSys-Signature"
)

// Outcome classifies the result of one outbound call.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response; the body is forwarded verbatim.
	OutcomeSuccess Outcome = iota

	// OutcomeClientError is an upstream 4xx; status and body are passed
	// through unchanged, the broker enforces its own policy.
	OutcomeClientError

	// OutcomeServerError is an upstream 5xx; the caller sees an opaque
	// 503, never the broker's internal detail.
	OutcomeServerError

	// OutcomeNetworkFailure is a connection or timeout failure, also
	// surfaced as an opaque 503.
	OutcomeNetworkFailure
)

// Result is the classified outcome of a single call. Status and Body are
// the upstream's for Success and ClientError; Err is set only for
// NetworkFailure.
type Result struct {
	Outcome Outcome
	Status  int
	Body    []byte
	Err     error
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each outbound call. Expiry is classified as a
// network failure, not retried.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client issues signed chat requests to the broker. One attempt per
// inbound request; retries risk duplicate side effects upstream.
type Client struct {
	baseURL    string
	senderID   string
	secret     string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// New creates a broker client.
func New(baseURL, senderID, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		senderID:   senderID,
		secret:     secret,
		timeout:    20 * time.Second,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatRequest is the outbound wire body.
type chatRequest struct {
	Content string         `json:"content"`
	Context map[string]any `json:"context"`
}

// Send posts one validated message to the broker and classifies the
// result. The returned Result always carries a terminal classification;
// Send itself never fails.
func (c *Client) Send(ctx context.Context, msg guard.ValidatedMessage) Result {
	body, err := json.Marshal(chatRequest{Content: string(msg), Context: map[string]any{}})
	if err != nil {
		return Result{Outcome: OutcomeNetworkFailure, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := c.baseURL + chatPath
	pathWithQuery := chatPath
	if u, err := url.Parse(endpoint); err == nil {
		pathWithQuery = u.RequestURI()
	}

	// The digest covers the exact bytes transmitted, computed before
	// signing. Nonce and timestamp are fresh per call.
	canonical := signing.CanonicalRequest{
		Method:           http.MethodPost,
		PathWithQuery:    pathWithQuery,
		SenderID:         c.senderID,
		TimestampSeconds: strconv.FormatInt(c.now().Unix(), 10),
		Nonce:            uuid.New().String(),
		BodySHA256Hex:    signing.BodyHash(body),
	}
	signature := signing.Sign(c.secret, canonical)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeNetworkFailure, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSender, c.senderID)
	req.Header.Set(HeaderTimestamp, canonical.TimestampSeconds)
	req.Header.Set(HeaderNonce, canonical.Nonce)
	req.Header.Set(HeaderSignature, signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeNetworkFailure, Err: fmt.Errorf("call broker: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Outcome: OutcomeNetworkFailure, Err: fmt.Errorf("read broker response: %w", err)}
	}

	return classify(resp.StatusCode, respBody)
}

// classify maps an upstream status to a terminal outcome.
func classify(status int, body []byte) Result {
	switch {
	case status >= 200 && status < 300:
		return Result{Outcome: OutcomeSuccess, Status: status, Body: body}
	case status >= 400 && status < 500:
		return Result{Outcome: OutcomeClientError, Status: status, Body: body}
	default:
		return Result{Outcome: OutcomeServerError, Status: status, Body: body}
	}
}

// Probe checks broker reachability for the health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
