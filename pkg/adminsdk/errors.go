package adminsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindRateLimited   Kind = "rate_limited"
	KindMissingToken  Kind = "missing_token"
	KindInvalidToken  Kind = "invalid_token"
	KindExpiredToken  Kind = "expired_token"
	KindRefreshFailed Kind = "refresh_failed"
	KindTimeout       Kind = "timeout"
	KindAborted       Kind = "aborted"
	KindNetwork       Kind = "network"
	KindHTTP          Kind = "http"
	KindValidation    Kind = "validation"
	KindFileType      Kind = "file_type"
	KindFileSize      Kind = "file_size"
	KindDecode        Kind = "decode"
)

// Error is the single error type surfaced by the gateway.
type Error struct {
	Kind Kind

	// StatusCode is the HTTP status when the failure came from a response.
	StatusCode int

	// Message is human readable and safe to show.
	Message string

	// Fields holds per-field validation messages from a 422 response.
	Fields map[string][]string

	// RetryAfter is set on KindRateLimited.
	RetryAfter time.Duration

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the gateway retries this failure on its own.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindNetwork
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func abortedError(err error) *Error {
	return &Error{Kind: KindAborted, Message: "request aborted", Err: err}
}

// apiErrorBody covers the error shapes the API returns.
type apiErrorBody struct {
	Message string                     `json:"message"`
	Error   string                     `json:"error"`
	Errors  map[string]json.RawMessage `json:"errors"`
}

// parseErrorResponse turns a non-2xx response into an *Error. It uses the
// body's message when there is one and falls back to the status line.
func parseErrorResponse(status int, body []byte) *Error {
	e := &Error{Kind: KindHTTP, StatusCode: status}
	if status == http.StatusUnprocessableEntity {
		e.Kind = KindValidation
	}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Message != "":
			e.Message = parsed.Message
		case parsed.Error != "":
			e.Message = parsed.Error
		}
		e.Fields = parseFieldErrors(parsed.Errors)
	}

	if e.Message == "" && len(e.Fields) > 0 {
		e.Message = firstFieldError(e.Fields)
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	}

	return e
}

// parseFieldErrors accepts both {"field": ["msg"]} and {"field": "msg"}.
func parseFieldErrors(raw map[string]json.RawMessage) map[string][]string {
	if len(raw) == 0 {
		return nil
	}

	fields := make(map[string][]string, len(raw))
	for name, value := range raw {
		var many []string
		if err := json.Unmarshal(value, &many); err == nil {
			fields[name] = many
			continue
		}
		var one string
		if err := json.Unmarshal(value, &one); err == nil {
			fields[name] = []string{one}
		}
	}
	return fields
}

func firstFieldError(fields map[string][]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if msgs := fields[name]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}
