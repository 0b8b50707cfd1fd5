package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahtee/admin/internal/admin/domain"
	"github.com/sahtee/admin/internal/admin/store"
	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/cryptox"
)

// DefaultProfile names the credential slot used when none is given.
const DefaultProfile = "default"

var _ adminsdk.TokenStore = (*TokenVault)(nil)

// TokenVault is the persistent TokenStore. Tokens are sealed before they
// reach the database, with the profile name bound as additional data so a
// blob cannot be replayed under another profile.
type TokenVault struct {
	Store   store.Store
	Sealer  *cryptox.Sealer
	Profile string
	Logger  *slog.Logger

	now func() time.Time
}

func NewTokenVault(st store.Store, sealer *cryptox.Sealer, profile string, logger *slog.Logger) *TokenVault {
	if profile == "" {
		profile = DefaultProfile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenVault{
		Store:   st,
		Sealer:  sealer,
		Profile: profile,
		Logger:  logger,
		now:     time.Now,
	}
}

func (v *TokenVault) LoadToken(ctx context.Context) (string, error) {
	cred, err := v.Store.Credentials().GetCredential(ctx, v.Profile)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}

	plaintext, err := v.Sealer.Open(cred.Sealed, []byte(v.Profile))
	if errors.Is(err, cryptox.ErrCiphertext) {
		// Sealed under another key (rotated or ephemeral). The session is
		// unrecoverable, so drop it and report no token.
		v.Logger.WarnContext(ctx, "discarding unreadable session credential", "profile", v.Profile)
		if derr := v.Store.Credentials().DeleteCredential(ctx, v.Profile); derr != nil {
			return "", fmt.Errorf("discarding credential: %w", derr)
		}
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("opening credential: %w", err)
	}

	return string(plaintext), nil
}

func (v *TokenVault) SaveToken(ctx context.Context, token string) error {
	sealed, err := v.Sealer.Seal([]byte(token), []byte(v.Profile))
	if err != nil {
		return fmt.Errorf("sealing credential: %w", err)
	}

	session := adminsdk.ParseSessionToken(token)
	now := v.now().UTC()

	cred := domain.Credential{
		Profile:   v.Profile,
		Sealed:    sealed,
		Subject:   session.Subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if !session.ExpiresAt.IsZero() {
		exp := session.ExpiresAt.UTC()
		cred.ExpiresAt = &exp
	}

	if err := v.Store.Credentials().PutCredential(ctx, cred); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	v.Logger.DebugContext(ctx, "session credential stored",
		"profile", v.Profile,
		"subject", session.Subject,
		"fingerprint", cryptox.ShortFingerprint(token),
	)
	return nil
}

func (v *TokenVault) ClearToken(ctx context.Context) error {
	if err := v.Store.Credentials().DeleteCredential(ctx, v.Profile); err != nil {
		return fmt.Errorf("clearing credential: %w", err)
	}
	return nil
}
