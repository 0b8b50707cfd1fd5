package adminsdk

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sahtee/admin/pkg/audit"
	"github.com/sahtee/admin/pkg/httpx"
	"github.com/sahtee/admin/pkg/slogx"
)

const (
	// DefaultTimeout is the wall-clock limit for one attempt. Retries start
	// a fresh timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts caps attempts for transient failures.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the backoff base; attempt n waits n*base.
	DefaultRetryDelay = time.Second
)

// Paths are the authentication endpoints relative to BaseURL.
type Paths struct {
	Login   string
	Logout  string
	Refresh string
}

// DefaultPaths returns the admin API's authentication endpoints.
func DefaultPaths() Paths {
	return Paths{
		Login:   "/admin/login",
		Logout:  "/admin/logout",
		Refresh: "/admin/refresh",
	}
}

// Client is the single gateway for calls to the Sahtee admin API. It owns
// the session token lifecycle, per-attempt timeouts, transient retries,
// response sniffing and coordinated token refresh.
//
// A Client is safe for concurrent use. Configure the exported fields before
// the first call.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Tokens is the only place the session token lives.
	Tokens TokenStore

	// Limiter admits calls per caller key. Nil disables client-side limiting.
	Limiter *httpx.Limiter

	// Audit receives security-relevant events.
	Audit  audit.Sink
	Logger *slog.Logger

	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Paths       Paths

	// OnLoginRequired runs after the session has been destroyed because it
	// could not be validated or refreshed. Interactive callers send the user
	// back to login from here.
	OnLoginRequired func()

	// OnMutation runs after a successful create, update or delete of an
	// entity type so cached datasets can be invalidated.
	OnMutation func(EntityType)

	refresh refreshState
	now     func() time.Time

	// fallbackTokens backs a Client built without NewClient and no Tokens.
	fallbackOnce   sync.Once
	fallbackTokens TokenStore
}

// NewClient creates a client for baseURL with default settings, an
// in-memory token store and the gateway rate limit profile.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{},
		Tokens:      NewMemoryTokenStore(""),
		Limiter:     httpx.NewLimiter(httpx.GatewayLimit),
		Audit:       audit.Nop{},
		Logger:      slog.Default(),
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Paths:       DefaultPaths(),
	}
}

// url builds a complete URL from the base URL, path and query.
func (c *Client) url(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.BaseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) tokens() TokenStore {
	if c.Tokens != nil {
		return c.Tokens
	}
	c.fallbackOnce.Do(func() {
		c.fallbackTokens = NewMemoryTokenStore("")
	})
	return c.fallbackTokens
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Client) record(ctx context.Context, e *audit.Event) {
	if c.Audit == nil {
		return
	}
	if e.RequestID == "" {
		e.RequestID = slogx.RequestID(ctx)
	}
	c.Audit.Record(ctx, *e)
}

func (c *Client) mutated(entity EntityType) {
	if c.OnMutation != nil {
		c.OnMutation(entity)
	}
}

// endSession destroys the stored token and hands control back to login.
func (c *Client) endSession(ctx context.Context, reason string) {
	if err := c.tokens().ClearToken(ctx); err != nil {
		c.logger().ErrorContext(ctx, "failed to clear session token", "error", err)
	}
	c.logger().WarnContext(ctx, "session ended", "reason", reason)

	if c.OnLoginRequired != nil {
		c.OnLoginRequired()
	}
}
