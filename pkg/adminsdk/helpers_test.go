package adminsdk

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sahtee/admin/pkg/audit"
	"github.com/sahtee/admin/pkg/jwtx"
	"github.com/sahtee/admin/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// mintToken returns an HS256 access token for subject expiring at exp.
func mintToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()

	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: "admin",
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

// newTestClient points a Client at handler with fast retries, no limiter
// and an in-memory audit sink.
func newTestClient(t *testing.T, handler http.Handler, token string) (*Client, *audit.Memory) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sink := &audit.Memory{}

	client := NewClient(srv.URL)
	client.Tokens = NewMemoryTokenStore(token)
	client.Limiter = nil
	client.Audit = sink
	client.Logger = slogx.Discard()
	client.RetryDelay = time.Millisecond

	return client, sink
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
