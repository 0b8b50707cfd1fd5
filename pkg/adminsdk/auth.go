package adminsdk

import (
	"context"
	"net/http"

	"github.com/sahtee/admin/pkg/audit"
)

// Login exchanges admin credentials for a session token and stores it.
// The password is sent as typed; only the email is sanitized.
func (c *Client) Login(ctx context.Context, email, password string) (SessionToken, error) {
	email = SanitizeString(email)
	if email == "" || password == "" {
		return SessionToken{}, &Error{
			Kind:    KindValidation,
			Message: "email and password are required",
		}
	}

	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return SessionToken{}, err
	}

	payload, err := c.do(ctx, http.MethodPost, c.Paths.Login, body, RequestOptions{
		SkipAuth: true,
		Caller:   "login",
	})
	if err != nil {
		return SessionToken{}, err
	}

	raw, ok := extractToken(payload)
	if !ok {
		return SessionToken{}, &Error{Kind: KindInvalidToken, Message: "login response carried no token"}
	}
	session := ParseSessionToken(raw)
	if !session.Valid {
		return SessionToken{}, &Error{Kind: KindInvalidToken, Message: "login returned a malformed token"}
	}

	if err := c.tokens().SaveToken(ctx, raw); err != nil {
		return SessionToken{}, &Error{Kind: KindValidation, Message: "failed to store session token", Err: err}
	}

	c.record(ctx, audit.NewEvent(audit.EventLogin).
		WithRequest(http.MethodPost, c.Paths.Login).
		WithCaller(session.Subject))
	c.logger().InfoContext(ctx, "logged in", "subject", session.Subject, "role", session.Role)

	return session, nil
}

// Logout tells the API the session is over and always clears local storage.
// The server call is best effort; an expired session is not refreshed for it.
func (c *Client) Logout(ctx context.Context) error {
	raw, err := c.tokens().LoadToken(ctx)
	if err != nil {
		return &Error{Kind: KindMissingToken, Message: "failed to load session token", Err: err}
	}

	if raw != "" && c.Paths.Logout != "" {
		if _, serr := c.send(ctx, http.MethodPost, c.Paths.Logout, nil, raw, RequestOptions{}); serr != nil {
			c.logger().WarnContext(ctx, "logout request failed", "kind", string(serr.Kind), "status", serr.StatusCode)
		}
	}

	if err := c.tokens().ClearToken(ctx); err != nil {
		return &Error{Kind: KindValidation, Message: "failed to clear session token", Err: err}
	}

	c.record(ctx, audit.NewEvent(audit.EventLogout).WithRequest(http.MethodPost, c.Paths.Logout))
	return nil
}

// Session decodes the stored token.
func (c *Client) Session(ctx context.Context) (SessionToken, error) {
	raw, err := c.tokens().LoadToken(ctx)
	if err != nil {
		return SessionToken{}, &Error{Kind: KindMissingToken, Message: "failed to load session token", Err: err}
	}
	if raw == "" {
		return SessionToken{}, &Error{Kind: KindMissingToken, Message: "not logged in"}
	}

	session := ParseSessionToken(raw)
	if !session.Valid {
		return session, &Error{Kind: KindInvalidToken, Message: "stored session token is malformed"}
	}
	return session, nil
}
