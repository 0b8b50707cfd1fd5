package jwtx

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Inspect decodes a compact JWT without verifying its signature. The admin
// client never holds the signing key, so this is a structural check: three
// segments, decodable header and payload, a known alg. Signature validity is
// the API's call.
func Inspect(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser()
	claims := &Claims{}

	parsed, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if parsed.Method == nil || parsed.Method.Alg() == "none" {
		return nil, fmt.Errorf("%w: unsupported alg", ErrMalformed)
	}

	return claims, nil
}
