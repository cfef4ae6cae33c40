package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Internal codes attached to validation verdicts.
const (
	CodeInvalidBody    = "INVALID_BODY"
	CodeMissingMessage = "MISSING_MESSAGE"
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeEmptyMessage   = "EMPTY_MESSAGE"
	CodeMessageTooLong = "MESSAGE_TOO_LONG"
)

// ValidatorGuard bounds-checks the message field of the request payload.
// On pass it exposes the trimmed message as the request's
// ValidatedMessage; downstream code never sees the raw input.
type ValidatorGuard struct {
	maxChars int
}

func NewValidatorGuard(maxChars int) *ValidatorGuard {
	return &ValidatorGuard{maxChars: maxChars}
}

func (g *ValidatorGuard) Name() string {
	return "validator"
}

func (g *ValidatorGuard) Check(_ context.Context, req *Request) Verdict {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return Reject(http.StatusBadRequest, "request body must be valid JSON", CodeInvalidBody)
	}

	if len(payload.Message) == 0 {
		return Reject(http.StatusBadRequest, "message field is required", CodeMissingMessage)
	}

	// A literal null unmarshals into a string as a no-op, so it has to
	// be ruled out before the type check.
	var message string
	if string(payload.Message) == "null" {
		return Reject(http.StatusBadRequest, "message must be a string", CodeInvalidMessage)
	}
	if err := json.Unmarshal(payload.Message, &message); err != nil {
		return Reject(http.StatusBadRequest, "message must be a string", CodeInvalidMessage)
	}

	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Reject(http.StatusBadRequest, "message must not be empty", CodeEmptyMessage)
	}

	if utf8.RuneCountInString(trimmed) > g.maxChars {
		return Reject(http.StatusRequestEntityTooLarge, "message exceeds maximum length", CodeMessageTooLong)
	}

	req.message = ValidatedMessage(trimmed)
	return Pass
}
