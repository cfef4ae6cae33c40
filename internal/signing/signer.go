// Package signing implements the canonical request signing scheme used to
// authenticate outbound calls to the SynapSys broker.
//
// A request is reduced to a fixed-order canonical string which is signed
// with HMAC-SHA256 under the shared client secret. Binding the method,
// path, sender, timestamp, nonce and body digest into one signature means
// altering any field invalidates it, and the timestamp plus single-use
// nonce let the receiver reject replays.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Version is the canonical string format version tag.
const Version = "v1"

// CanonicalRequest carries every field bound by the signature.
// Built once per outbound call and never mutated.
type CanonicalRequest struct {
	Method        string
	PathWithQuery string
	SenderID      string

	// TimestampSeconds is seconds since epoch, already formatted, so the
	// signed bytes match the X-SynapSys-Timestamp header exactly.
	TimestampSeconds string

	// Nonce is a fresh UUID per call. Reuse would allow replay of an
	// intercepted signature.
	Nonce string

	// BodySHA256Hex is the hex digest of the exact bytes transmitted as
	// the request body, computed before signing.
	BodySHA256Hex string
}

// Canonical returns the newline-joined canonical string. Two requests
// with identical fields produce byte-identical output.
func (r CanonicalRequest) Canonical() string {
	return strings.Join([]string{
		Version,
		strings.ToUpper(r.Method),
		r.PathWithQuery,
		r.SenderID,
		r.TimestampSeconds,
		r.Nonce,
		r.BodySHA256Hex,
	}, "\n")
}

// Sign returns the base64 HMAC-SHA256 signature of the canonical string
// under secret.
func Sign(secret string, r CanonicalRequest) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(r.Canonical()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches Sign(secret, r), in constant
// time. The broker performs this check on receipt; it is exposed here for
// tests and local tooling.
func Verify(secret string, r CanonicalRequest, signature string) bool {
	expected := Sign(secret, r)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// BodyHash returns the lowercase hex SHA-256 digest of body.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
