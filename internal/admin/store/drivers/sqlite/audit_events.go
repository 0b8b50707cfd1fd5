package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sahtee/admin/pkg/audit"
)

var auditColumns = []string{
	"id", "ts", "type", "method", "path", "status_code",
	"message", "request_id", "caller", "attempts",
}

type auditEventsRepo struct {
	db dbtx
}

func (r *auditEventsRepo) InsertAuditEvent(ctx context.Context, e audit.Event) error {
	query, args, err := ssq.
		Insert("audit_events").
		Columns(auditColumns...).
		Values(e.ID, toMillis(e.Timestamp), string(e.Type), e.Method, e.Path, e.StatusCode,
			e.Message, e.RequestID, e.Caller, e.Attempts).
		ToSql()
	if err != nil {
		return fmt.Errorf("building audit insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

func applyAuditFilter(qb sq.SelectBuilder, f audit.QueryFilter) sq.SelectBuilder {
	if f.Type != "" {
		qb = qb.Where(sq.Eq{"type": string(f.Type)})
	}
	if f.Since != nil {
		qb = qb.Where(sq.GtOrEq{"ts": toMillis(*f.Since)})
	}
	if f.Until != nil {
		qb = qb.Where(sq.LtOrEq{"ts": toMillis(*f.Until)})
	}
	return qb
}

func (r *auditEventsRepo) QueryAuditEvents(ctx context.Context, f audit.QueryFilter) ([]audit.Event, error) {
	qb := applyAuditFilter(ssq.Select(auditColumns...).From("audit_events"), f).
		OrderBy("ts DESC", "id DESC")
	if f.Limit > 0 {
		qb = qb.Limit(uint64(f.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]audit.Event, 0)
	for rows.Next() {
		var (
			e       audit.Event
			ts      int64
			evtType string
		)
		if err := rows.Scan(&e.ID, &ts, &evtType, &e.Method, &e.Path, &e.StatusCode,
			&e.Message, &e.RequestID, &e.Caller, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		e.Type = audit.EventType(evtType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, nil
}

func (r *auditEventsRepo) CountAuditEvents(ctx context.Context, f audit.QueryFilter) (int, error) {
	query, args, err := applyAuditFilter(ssq.Select("COUNT(*)").From("audit_events"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building audit count: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit events: %w", err)
	}
	return n, nil
}

func (r *auditEventsRepo) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := ssq.Delete("audit_events").Where(sq.Lt{"ts": toMillis(cutoff)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building audit delete: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting audit events: %w", err)
	}
	return res.RowsAffected()
}
