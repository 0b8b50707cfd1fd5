package store

import (
	"context"
	"errors"
	"time"

	"github.com/sahtee/admin/internal/admin/domain"
	"github.com/sahtee/admin/pkg/audit"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store is the root data access interface for the admin client's local
// state. Repositories hang off it so transactions stay explicit.
type Store interface {
	Credentials() Credentials
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Credentials() Credentials
	AuditEvents() AuditEvents
}

type Credentials interface {
	// GetCredential returns ErrNotFound when the profile has no session.
	GetCredential(ctx context.Context, profile string) (domain.Credential, error)

	// PutCredential inserts or replaces the profile's credential.
	PutCredential(ctx context.Context, c domain.Credential) error

	// DeleteCredential is a no-op for unknown profiles.
	DeleteCredential(ctx context.Context, profile string) error
}

type AuditEvents interface {
	InsertAuditEvent(ctx context.Context, e audit.Event) error

	// QueryAuditEvents returns matching events, newest first.
	QueryAuditEvents(ctx context.Context, f audit.QueryFilter) ([]audit.Event, error)
	CountAuditEvents(ctx context.Context, f audit.QueryFilter) (int, error)

	// DeleteAuditEventsBefore removes events older than cutoff and reports
	// how many went.
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
