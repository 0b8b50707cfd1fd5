package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sink receives audit events. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event)

func (f SinkFunc) Record(ctx context.Context, event Event) { f(ctx, event) }

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

// SlogSink writes each event as a warn-level log line.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Record(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.WarnContext(ctx, "audit_event",
		"event_id", e.ID,
		"type", string(e.Type),
		"method", e.Method,
		"path", e.Path,
		"status", e.StatusCode,
		"message", e.Message,
		"req_id", e.RequestID,
		"caller", e.Caller,
		"attempts", e.Attempts,
	)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}

// Memory keeps events in memory. Used by tests and by the CLI's dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Count returns how many events of type t were recorded.
func (m *Memory) Count(t EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// QueryFilter narrows a query over persisted events.
type QueryFilter struct {
	Type  EventType
	Since *time.Time
	Until *time.Time
	Limit int
}
