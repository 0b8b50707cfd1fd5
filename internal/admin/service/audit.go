package service

import (
	"context"
	"log/slog"

	"github.com/sahtee/admin/internal/admin/store"
	"github.com/sahtee/admin/pkg/audit"
)

var _ audit.Sink = (*AuditRecorder)(nil)

// AuditRecorder persists audit events. Recording never fails the caller;
// storage errors are logged.
type AuditRecorder struct {
	Store  store.Store
	Logger *slog.Logger
}

func NewAuditRecorder(st store.Store, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{Store: st, Logger: logger}
}

func (r *AuditRecorder) Record(ctx context.Context, e audit.Event) {
	// The request that produced the event may already be cancelled.
	ctx = context.WithoutCancel(ctx)

	if err := r.Store.AuditEvents().InsertAuditEvent(ctx, e); err != nil {
		r.Logger.ErrorContext(ctx, "failed to persist audit event",
			"event_id", e.ID,
			"type", string(e.Type),
			"error", err,
		)
	}
}

// Query returns stored events matching f, newest first.
func (r *AuditRecorder) Query(ctx context.Context, f audit.QueryFilter) ([]audit.Event, error) {
	return r.Store.AuditEvents().QueryAuditEvents(ctx, f)
}

// Count returns how many stored events match f.
func (r *AuditRecorder) Count(ctx context.Context, f audit.QueryFilter) (int, error) {
	return r.Store.AuditEvents().CountAuditEvents(ctx, f)
}
