package adminsdk

import (
	"context"
	"net/http"
	"sync"

	"github.com/sahtee/admin/pkg/audit"
)

type refreshResult struct {
	token string
	err   error
}

// refreshOutcome remembers which stale token a result answered, so a 401
// that arrives after the refresh completed reuses it.
type refreshOutcome struct {
	from string
	refreshResult
}

// refreshState coordinates token refresh for one Client. At most one
// exchange runs at a time; callers that hit a 401 meanwhile queue and are
// released in arrival order with the same result.
type refreshState struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
	last       *refreshOutcome
}

// refreshFrom returns a replacement for the stale token.
func (c *Client) refreshFrom(ctx context.Context, stale string) (string, error) {
	s := &c.refresh

	s.mu.Lock()
	if s.last != nil && s.last.from == stale {
		r := s.last.refreshResult
		s.mu.Unlock()
		return r.token, r.err
	}
	if s.refreshing {
		ch := make(chan refreshResult, 1)
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()

		select {
		case r := <-ch:
			return r.token, r.err
		case <-ctx.Done():
			return "", abortedError(ctx.Err())
		}
	}
	// The request may have carried a token that was rotated since. A live
	// replacement in the store answers it without another exchange, and an
	// expired one is what the server will accept for the next refresh.
	from := stale
	if stored, lerr := c.tokens().LoadToken(ctx); lerr == nil && stored != "" && stored != stale {
		session := ParseSessionToken(stored)
		if session.Valid && !session.Expired(c.clock()) {
			s.mu.Unlock()
			return stored, nil
		}
		from = stored
	}
	s.refreshing = true
	s.mu.Unlock()

	token, err := c.exchange(ctx, from)
	result := refreshResult{token: token}
	if err != nil {
		result.err = err
		c.record(ctx, audit.NewEvent(audit.EventRefreshFailed).
			WithRequest(http.MethodPost, c.Paths.Refresh).
			WithStatus(err.StatusCode).
			WithMessage(err.Message))
		c.endSession(ctx, "refresh failed")
	}

	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.refreshing = false
	s.last = &refreshOutcome{from: from, refreshResult: result}
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- result
	}

	return result.token, result.err
}

// exchange posts the stale token to the refresh endpoint and stores the
// replacement. It is detached from the caller's cancellation since waiters
// depend on its result.
func (c *Client) exchange(ctx context.Context, stale string) (string, *Error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
	defer cancel()

	if c.Paths.Refresh == "" {
		return "", &Error{Kind: KindRefreshFailed, Message: "no refresh endpoint configured"}
	}

	payload, err := c.send(ctx, http.MethodPost, c.Paths.Refresh, nil, stale, RequestOptions{})
	if err != nil {
		return "", &Error{
			Kind:       KindRefreshFailed,
			StatusCode: err.StatusCode,
			Message:    "session refresh failed",
			Err:        err,
		}
	}

	token, ok := extractToken(payload)
	if !ok {
		return "", &Error{Kind: KindRefreshFailed, Message: "refresh response carried no token"}
	}
	if !ParseSessionToken(token).Valid {
		return "", &Error{Kind: KindRefreshFailed, Message: "refresh returned a malformed token"}
	}

	if serr := c.tokens().SaveToken(ctx, token); serr != nil {
		return "", &Error{Kind: KindRefreshFailed, Message: "failed to store refreshed token", Err: serr}
	}

	c.logger().InfoContext(ctx, "session token refreshed")
	return token, nil
}

// tokenResponse covers the token shapes returned by login and refresh.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	Data        *struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	} `json:"data"`
}

func extractToken(p *Payload) (string, bool) {
	if p == nil || p.Kind != PayloadJSON {
		return "", false
	}

	var resp tokenResponse
	if err := p.Decode(&resp); err != nil {
		return "", false
	}

	candidates := []string{resp.AccessToken, resp.Token}
	if resp.Data != nil {
		candidates = append(candidates, resp.Data.AccessToken, resp.Data.Token)
	}
	for _, t := range candidates {
		if t != "" {
			return t, true
		}
	}
	return "", false
}
