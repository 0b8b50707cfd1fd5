package audit_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/sahtee/admin/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := audit.NewEvent(audit.EventForbidden).
		WithRequest("GET", "/admin/users").
		WithStatus(403).
		WithRequestID("req_1").
		WithCaller("default").
		WithAttempts(1)

	assert.True(t, strings.HasPrefix(e.ID, "evt_"))
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, audit.EventForbidden, e.Type)
	assert.Equal(t, "GET", e.Method)
	assert.Equal(t, "/admin/users", e.Path)
	assert.Equal(t, 403, e.StatusCode)
	assert.Equal(t, "req_1", e.RequestID)
	assert.Equal(t, "default", e.Caller)
	assert.Equal(t, 1, e.Attempts)
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bearer header", "sent Authorization: Bearer abc.def-ghi", "sent Authorization: Bearer [REDACTED]"},
		{"bare jwt", "token eyJhbGciOi.eyJzdWIi.c2ln rejected", "token [REDACTED] rejected"},
		{"nothing to redact", "HTTP 500: Internal Server Error", "HTTP 500: Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, audit.Redact(tt.in))
		})
	}

	e := audit.NewEvent(audit.EventRefreshFailed).WithMessage("Bearer eyJx.eyJy.z expired")
	assert.NotContains(t, e.Message, "eyJx")
}

func TestSinks(t *testing.T) {
	ctx := context.Background()

	t.Run("memory counts by type", func(t *testing.T) {
		var mem audit.Memory
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				mem.Record(ctx, *audit.NewEvent(audit.EventServerError))
			}()
		}
		wg.Wait()
		mem.Record(ctx, *audit.NewEvent(audit.EventForbidden))

		require.Len(t, mem.Events(), 11)
		require.Equal(t, 10, mem.Count(audit.EventServerError))
		require.Equal(t, 1, mem.Count(audit.EventForbidden))
	})

	t.Run("multi fans out", func(t *testing.T) {
		var a, b audit.Memory
		calls := 0
		sink := audit.Multi{&a, &b, audit.SinkFunc(func(context.Context, audit.Event) { calls++ }), audit.Nop{}}

		sink.Record(ctx, *audit.NewEvent(audit.EventLogin))
		require.Len(t, a.Events(), 1)
		require.Len(t, b.Events(), 1)
		require.Equal(t, 1, calls)
	})

	t.Run("slog sink writes a line", func(t *testing.T) {
		var buf bytes.Buffer
		sink := audit.SlogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

		sink.Record(ctx, *audit.NewEvent(audit.EventRateLimited).WithCaller("search"))
		require.Contains(t, buf.String(), "audit_event")
		require.Contains(t, buf.String(), "rate_limited")
		require.Contains(t, buf.String(), "caller=search")
	})
}
