package httpx

import (
	"net/http"
	"strings"

	"github.com/sahtee/admin/pkg/jwtx"
	"github.com/sahtee/admin/pkg/slogx"
)

type Middleware func(http.Handler) http.Handler

// Verifier validates a bearer token and returns its claims.
type Verifier interface {
	Verify(token string) (*jwtx.Claims, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(token string) (*jwtx.Claims, error)

func (f VerifierFunc) Verify(token string) (*jwtx.Claims, error) { return f(token) }

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return raw, raw != ""
}

func AuthnMiddleware(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				log.Debug("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, raw, claims)))
		})
	}
}

// RFC 6750-compliant error response for bearer auth, with a JSON message
// body the admin client can surface.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "Unauthenticated.")
}
