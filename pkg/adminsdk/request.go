package adminsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sahtee/admin/pkg/audit"
)

const (
	// RouteHeader carries RequestOptions.Route to the API.
	RouteHeader = "X-Route-Scope"

	// DefaultCaller is the limiter key for calls that do not name one.
	DefaultCaller = "default"
)

// RequestOptions tunes a single gateway call.
type RequestOptions struct {
	// SkipAuth sends the call without a bearer token and skips token checks.
	SkipAuth bool

	// SkipRateLimit bypasses the client-side limiter.
	SkipRateLimit bool

	// Retries overrides the number of transient retries after the first
	// attempt. Zero uses the client default, negative disables retries.
	Retries int

	// Route is sent as the X-Route-Scope header.
	Route string

	// Caller is the limiter key. Defaults to DefaultCaller.
	Caller string

	Query  url.Values
	Header map[string]string
}

func (o RequestOptions) caller() string {
	if o.Caller == "" {
		return DefaultCaller
	}
	return o.Caller
}

type requestBody struct {
	data        []byte
	contentType string
}

// jsonBody encodes v without sanitizing it.
func jsonBody(v any) (*requestBody, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to encode request body", Err: err}
	}
	return &requestBody{data: data, contentType: "application/json"}, nil
}

// sanitizedBody sanitizes every string in v, then encodes it.
func sanitizedBody(v any) (*requestBody, error) {
	if v == nil {
		return nil, nil
	}
	data, err := SanitizeJSON(v)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to encode request body", Err: err}
	}
	return &requestBody{data: data, contentType: "application/json"}, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string, opts RequestOptions) (*Payload, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts)
}

// Post issues a POST request with a sanitized JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, opts RequestOptions) (*Payload, error) {
	return c.write(ctx, http.MethodPost, path, body, opts)
}

// Put issues a PUT request with a sanitized JSON body.
func (c *Client) Put(ctx context.Context, path string, body any, opts RequestOptions) (*Payload, error) {
	return c.write(ctx, http.MethodPut, path, body, opts)
}

// Patch issues a PATCH request with a sanitized JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, opts RequestOptions) (*Payload, error) {
	return c.write(ctx, http.MethodPatch, path, body, opts)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts RequestOptions) (*Payload, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts)
}

func (c *Client) write(ctx context.Context, method, path string, body any, opts RequestOptions) (*Payload, error) {
	rb, err := sanitizedBody(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, path, rb, opts)
}

// do runs the full pipeline for one logical call: limiter, token checks,
// send, one refresh-and-reissue on 401 and transient retries.
func (c *Client) do(ctx context.Context, method, path string, body *requestBody, opts RequestOptions) (*Payload, error) {
	caller := opts.caller()

	if !opts.SkipRateLimit && c.Limiter != nil {
		if ok, retryAfter := c.Limiter.Allow(caller); !ok {
			c.record(ctx, audit.NewEvent(audit.EventRateLimited).
				WithRequest(method, path).
				WithCaller(caller))
			return nil, &Error{
				Kind:       KindRateLimited,
				Message:    "too many requests, try again later",
				RetryAfter: retryAfter,
			}
		}
	}

	var token string
	if !opts.SkipAuth {
		t, err := c.currentToken(ctx, method, path)
		if err != nil {
			return nil, err
		}
		token = t
	}

	maxRetries := c.retries(opts)
	reissued := false
	attempts := 0

	for {
		attempts++
		payload, err := c.send(ctx, method, path, body, token, opts)
		if err == nil {
			return payload, nil
		}

		if err.StatusCode == http.StatusUnauthorized && !opts.SkipAuth && !reissued {
			reissued = true
			fresh, rerr := c.refreshFrom(ctx, token)
			if rerr != nil {
				return nil, rerr
			}
			token = fresh
			// The reissued request gets its own retry budget.
			attempts = 0
			continue
		}

		if err.Retryable() {
			if attempts <= maxRetries {
				c.logger().DebugContext(ctx, "retrying request",
					"method", method,
					"path", path,
					"attempt", attempts,
					"kind", string(err.Kind),
				)
				if werr := c.backoff(ctx, attempts); werr != nil {
					return nil, werr
				}
				continue
			}
			c.record(ctx, audit.NewEvent(audit.EventRequestFailed).
				WithRequest(method, path).
				WithCaller(caller).
				WithAttempts(attempts).
				WithMessage(err.Message))
			return nil, err
		}

		switch {
		case err.StatusCode == http.StatusForbidden:
			c.record(ctx, audit.NewEvent(audit.EventForbidden).
				WithRequest(method, path).
				WithStatus(err.StatusCode).
				WithCaller(caller).
				WithMessage(err.Message))
		case err.StatusCode >= http.StatusInternalServerError:
			c.record(ctx, audit.NewEvent(audit.EventServerError).
				WithRequest(method, path).
				WithStatus(err.StatusCode).
				WithCaller(caller).
				WithMessage(err.Message))
		}
		return nil, err
	}
}

func (c *Client) retries(opts RequestOptions) int {
	switch {
	case opts.Retries < 0:
		return 0
	case opts.Retries > 0:
		return opts.Retries
	case c.MaxAttempts > 0:
		return c.MaxAttempts - 1
	default:
		return DefaultMaxAttempts - 1
	}
}

// backoff waits attempt*RetryDelay or until ctx is done.
func (c *Client) backoff(ctx context.Context, attempt int) *Error {
	base := c.RetryDelay
	if base < 0 {
		base = 0
	}
	timer := time.NewTimer(base * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return abortedError(ctx.Err())
	}
}

// currentToken loads the stored token and checks it before use. An expired
// token is refreshed first through the shared coordinator.
func (c *Client) currentToken(ctx context.Context, method, path string) (string, error) {
	raw, err := c.tokens().LoadToken(ctx)
	if err != nil {
		return "", &Error{Kind: KindMissingToken, Message: "failed to load session token", Err: err}
	}

	if raw == "" {
		c.record(ctx, audit.NewEvent(audit.EventMissingToken).WithRequest(method, path))
		return "", &Error{Kind: KindMissingToken, Message: "not logged in"}
	}

	session := ParseSessionToken(raw)
	if !session.Valid {
		c.record(ctx, audit.NewEvent(audit.EventInvalidToken).WithRequest(method, path))
		c.endSession(ctx, "invalid token")
		return "", &Error{Kind: KindInvalidToken, Message: "stored session token is malformed"}
	}

	if session.Expired(c.clock()) {
		c.record(ctx, audit.NewEvent(audit.EventExpiredToken).WithRequest(method, path))
		if c.Paths.Refresh == "" {
			c.endSession(ctx, "expired token")
			return "", &Error{Kind: KindExpiredToken, Message: "session expired"}
		}
		return c.refreshFrom(ctx, raw)
	}

	return raw, nil
}

// send performs one HTTP attempt under its own timeout.
func (c *Client) send(ctx context.Context, method, path string, body *requestBody, token string, opts RequestOptions) (*Payload, *Error) {
	if err := ctx.Err(); err != nil {
		return nil, abortedError(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, c.url(path, opts.Query), reader)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to create request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil && body.contentType != "" {
		req.Header.Set("Content-Type", body.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if opts.Route != "" {
		req.Header.Set(RouteHeader, opts.Route)
	}
	for k, v := range opts.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, transportError(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, attemptCtx, err)
	}

	return classify(path, resp.StatusCode, resp.Header, data)
}

// transportError separates caller cancellation from an attempt timeout and
// from everything else the network can do.
func transportError(parent, attempt context.Context, err error) *Error {
	switch {
	case parent.Err() != nil:
		return abortedError(parent.Err())
	case errors.Is(attempt.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	default:
		return &Error{Kind: KindNetwork, Message: "network error", Err: err}
	}
}
