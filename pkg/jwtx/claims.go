package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between this process and the API.
const DefaultLeeway = 5 * time.Second

// Claims are the access-token claims the admin API issues. Only the
// registered claims are relied upon; the rest are informational.
type Claims struct {
	jwt.RegisteredClaims

	// Role of the authenticated account, e.g. "admin".
	Role string `json:"role,omitempty"`

	// Email of the authenticated account.
	Email string `json:"email,omitempty"`
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

// Expired reports whether exp has passed at now, allowing leeway. Tokens
// without exp never expire client-side; the server remains the authority.
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	exp := c.Expiry()
	if exp.IsZero() {
		return false
	}
	return now.After(exp.Add(leeway))
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry(now time.Time, leeway time.Duration) error {
	if c.Expired(now, leeway) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
