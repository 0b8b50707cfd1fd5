package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSig = errors.New("jwtx: invalid signature")

// HS256 signs and verifies tokens with a shared secret. The admin client
// never holds the secret; this backs in-process stand-ins for the API.
type HS256 struct {
	secret []byte
	now    func() time.Time
}

func NewHS256(secret []byte) (*HS256, error) {
	if len(secret) < 16 {
		return nil, errors.New("jwtx: HS256 secret must be at least 16 bytes")
	}
	return &HS256{secret: secret, now: time.Now}, nil
}

func (h *HS256) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign turns claims into a signed compact JWT.
func (h *HS256) Sign(claims Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

// Issue signs a token for subject valid for ttl from now.
func (h *HS256) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := h.now()
	return h.Sign(Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	})
}

// Verify checks the signature and the exp/nbf window.
func (h *HS256) Verify(token string) (*Claims, error) {
	claims, err := h.VerifySignature(token)
	if err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiry(h.now(), DefaultLeeway); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifySignature checks only the signature, accepting expired tokens.
// Refresh endpoints use it: an expired token is still proof of a session.
func (h *HS256) VerifySignature(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSig
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidSig
	}
	return claims, nil
}
