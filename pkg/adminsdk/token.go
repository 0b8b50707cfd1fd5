package adminsdk

import (
	"context"
	"sync"
	"time"

	"github.com/sahtee/admin/pkg/jwtx"
)

// TokenStore persists the session token. The Client is its only reader and
// writer; nothing else should touch the underlying storage.
type TokenStore interface {
	// LoadToken returns the stored token, or "" when there is none.
	LoadToken(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// MemoryTokenStore keeps the token in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore returns a store seeded with token (may be empty).
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

func (m *MemoryTokenStore) LoadToken(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryTokenStore) SaveToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokenStore) ClearToken(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// SessionToken is a decoded view of the bearer token.
type SessionToken struct {
	Value     string
	Subject   string
	Role      string
	ExpiresAt time.Time // zero when the token carries no exp

	// Valid is false when the token is not a well-formed JWT.
	Valid bool
}

// ParseSessionToken decodes raw without verifying its signature.
func ParseSessionToken(raw string) SessionToken {
	claims, err := jwtx.Inspect(raw)
	if err != nil {
		return SessionToken{Value: raw}
	}

	return SessionToken{
		Value:     raw,
		Subject:   claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.Expiry(),
		Valid:     true,
	}
}

// Expired reports whether the token is past its exp at now.
func (t SessionToken) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return now.After(t.ExpiresAt.Add(jwtx.DefaultLeeway))
}
