package domain

import "time"

// Credential is a sealed session token persisted for a profile. Sealed is
// ciphertext; the plaintext token never reaches storage.
type Credential struct {
	Profile   string
	Sealed    []byte
	Subject   string
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the sealed token's exp has passed at now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
