// Package audit records security-relevant gateway events. Sinks are a side
// channel: recording never changes the outcome of the call being audited.
package audit

import (
	"regexp"
	"time"

	"github.com/sahtee/admin/pkg/idx"
)

// EventType categorizes audit events.
type EventType string

const (
	// EventRateLimited is a call rejected by the client-side limiter.
	EventRateLimited EventType = "rate_limited"

	// EventMissingToken is an authenticated call attempted without a session.
	EventMissingToken EventType = "missing_token"

	// EventInvalidToken is a stored token that failed structural validation.
	EventInvalidToken EventType = "invalid_token"

	// EventExpiredToken is a stored token found expired before sending.
	EventExpiredToken EventType = "expired_token"

	// EventForbidden is a 403 response.
	EventForbidden EventType = "forbidden"

	// EventServerError is a 5xx response.
	EventServerError EventType = "server_error"

	// EventRefreshFailed is a token refresh that failed and ended the session.
	EventRefreshFailed EventType = "refresh_failed"

	// EventRequestFailed is a call that still failed after all retries.
	EventRequestFailed EventType = "request_failed"

	// EventLogin and EventLogout bracket a session.
	EventLogin  EventType = "login"
	EventLogout EventType = "logout"
)

// Event is one audit record.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Caller     string    `json:"caller,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
}

// NewEvent creates a new audit event.
func NewEvent(eventType EventType) *Event {
	return &Event{
		ID:        idx.NewEvent().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// WithRequest adds the HTTP method and path.
func (e *Event) WithRequest(method, path string) *Event {
	e.Method = method
	e.Path = path
	return e
}

// WithStatus adds the HTTP status code.
func (e *Event) WithStatus(code int) *Event {
	e.StatusCode = code
	return e
}

// WithMessage adds a human-readable message, with credentials redacted.
func (e *Event) WithMessage(msg string) *Event {
	e.Message = Redact(msg)
	return e
}

// WithRequestID adds the outbound request id.
func (e *Event) WithRequestID(id string) *Event {
	e.RequestID = id
	return e
}

// WithCaller adds the rate-limiter caller key.
func (e *Event) WithCaller(caller string) *Event {
	e.Caller = caller
	return e
}

// WithAttempts adds how many attempts were made.
func (e *Event) WithAttempts(n int) *Event {
	e.Attempts = n
	return e
}

var (
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.~+/]+=*`)
	jwtPattern    = regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`)
)

// Redact strips bearer credentials and compact JWTs from s.
func Redact(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
	return jwtPattern.ReplaceAllString(s, "[REDACTED]")
}
