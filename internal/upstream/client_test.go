package upstream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/synapsys-ai/edge-gateway/internal/guard"
	"github.com/synapsys-ai/edge-gateway/internal/signing"
)

const (
	testSender = "edge-gateway"
	testSecret = "shared-secret"
)

func TestSend_SignedRequest(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sender":"broker","content":"hello","status":"ok"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, testSender, testSecret)
	result := client.Send(t.Context(), guard.ValidatedMessage("What is your experience?"))

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("Outcome = %v, want success (err: %v)", result.Outcome, result.Err)
	}
	if gotPath != "/api/v1/chat" {
		t.Errorf("path = %q, want /api/v1/chat", gotPath)
	}

	var wire struct {
		Content string         `json:"content"`
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("unmarshal outbound body: %v", err)
	}
	if wire.Content != "What is your experience?" {
		t.Errorf("content = %q", wire.Content)
	}
	if wire.Context == nil {
		t.Error("context field missing from outbound body")
	}

	if got := gotHeaders.Get(HeaderSender); got != testSender {
		t.Errorf("%s = %q, want %q", HeaderSender, got, testSender)
	}
	for _, h := range []string{HeaderTimestamp, HeaderNonce, HeaderSignature} {
		if gotHeaders.Get(h) == "" {
			t.Errorf("header %s missing", h)
		}
	}

	// The broker-side verification must succeed on the transmitted
	// headers and body bytes.
	canonical := signing.CanonicalRequest{
		Method:           http.MethodPost,
		PathWithQuery:    "/api/v1/chat",
		SenderID:         gotHeaders.Get(HeaderSender),
		TimestampSeconds: gotHeaders.Get(HeaderTimestamp),
		Nonce:            gotHeaders.Get(HeaderNonce),
		BodySHA256Hex:    signing.BodyHash(gotBody),
	}
	if !signing.Verify(testSecret, canonical, gotHeaders.Get(HeaderSignature)) {
		t.Error("signature does not verify against the transmitted request")
	}
}

func TestSend_FreshNoncePerCall(t *testing.T) {
	var nonces []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces = append(nonces, r.Header.Get(HeaderNonce))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := New(srv.URL, testSender, testSecret)
	client.Send(t.Context(), "one")
	client.Send(t.Context(), "two")

	if len(nonces) != 2 || nonces[0] == nonces[1] {
		t.Errorf("nonces must be fresh per call, got %v", nonces)
	}
}

func TestSend_Classification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantOutcome Outcome
	}{
		{"200", http.StatusOK, OutcomeSuccess},
		{"201", http.StatusCreated, OutcomeSuccess},
		{"400", http.StatusBadRequest, OutcomeClientError},
		{"422", http.StatusUnprocessableEntity, OutcomeClientError},
		{"500", http.StatusInternalServerError, OutcomeServerError},
		{"502", http.StatusBadGateway, OutcomeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"broker says"}`))
			}))
			defer srv.Close()

			result := New(srv.URL, testSender, testSecret).Send(t.Context(), "msg")

			if result.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", result.Outcome, tt.wantOutcome)
			}
			if result.Status != tt.status {
				t.Errorf("Status = %d, want %d", result.Status, tt.status)
			}
			if string(result.Body) != `{"detail":"broker says"}` {
				t.Errorf("Body = %q, want upstream body preserved", result.Body)
			}
		})
	}
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	result := New(srv.URL, testSender, testSecret).Send(t.Context(), "msg")

	if result.Outcome != OutcomeNetworkFailure {
		t.Fatalf("Outcome = %v, want network failure", result.Outcome)
	}
	if result.Err == nil {
		t.Error("network failure should carry the underlying error")
	}
}

func TestSend_TimeoutIsNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	client := New(srv.URL, testSender, testSecret, WithTimeout(50*time.Millisecond))
	result := client.Send(t.Context(), "msg")

	if result.Outcome != OutcomeNetworkFailure {
		t.Errorf("Outcome = %v, want network failure on timeout", result.Outcome)
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, testSender, testSecret)
	if err := client.Probe(t.Context()); err != nil {
		t.Errorf("Probe against live server: %v", err)
	}

	down := httptest.NewServer(nil)
	down.Close()
	if err := New(down.URL, testSender, testSecret).Probe(t.Context()); err == nil {
		t.Error("Probe against closed server should fail")
	}
}
