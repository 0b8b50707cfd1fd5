// Package fakeapi is an in-process stand-in for the Sahtee admin API. It
// issues real signed tokens, paginates like the production backend and can
// be told to expire sessions or fail requests, so the gateway and dataset
// layers can be exercised end to end without a live server.
package fakeapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/cryptox"
	"github.com/sahtee/admin/pkg/httpx"
	"github.com/sahtee/admin/pkg/idx"
	"github.com/sahtee/admin/pkg/jwtx"
	"github.com/sahtee/admin/pkg/slogx"
)

const (
	DefaultTokenTTL = 15 * time.Minute
	defaultPerPage  = 15
	maxPerPage      = 500
)

type Account struct {
	Email    string
	Password string
	Subject  string
	Role     string
}

type Options struct {
	TokenTTL time.Duration
	Logger   *slog.Logger
}

type fault struct {
	status    int
	remaining int
}

type file struct {
	contentType string
	data        []byte
}

type Server struct {
	*httptest.Server

	signer *jwtx.HS256
	ttl    time.Duration
	logger *slog.Logger

	mu          sync.Mutex
	accounts    map[string]Account
	active      map[string]bool // jti of tokens accepted on data routes
	revoked     map[string]bool // fingerprints of logged-out tokens
	records     map[adminsdk.EntityType][]adminsdk.Record
	reserved    []adminsdk.Record
	specs       []adminsdk.Record
	licenses    map[string]file
	images      map[string]file
	faults      map[string]*fault
	hits        map[string]int
	nextID      int
	refreshes   int
	failRefresh bool
}

// New starts a server. Callers must Close it.
func New(opts Options) *Server {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Logger == nil {
		opts.Logger = slogx.Discard()
	}

	signer, err := jwtx.NewHS256([]byte(idx.New().String()))
	if err != nil {
		panic(fmt.Sprintf("fakeapi: %v", err))
	}

	s := &Server{
		signer:   signer,
		ttl:      opts.TokenTTL,
		logger:   opts.Logger,
		accounts: make(map[string]Account),
		active:   make(map[string]bool),
		revoked:  make(map[string]bool),
		records:  make(map[adminsdk.EntityType][]adminsdk.Record),
		licenses: make(map[string]file),
		images:   make(map[string]file),
		faults:   make(map[string]*fault),
		hits:     make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /admin/login", s.handleLogin)
	mux.HandleFunc("POST /admin/refresh", s.handleRefresh)

	authed := func(h http.HandlerFunc) http.Handler {
		return httpx.AuthnMiddleware(httpx.VerifierFunc(s.verify))(httpx.RequireRole("admin")(h))
	}

	mux.Handle("POST /admin/logout", authed(s.handleLogout))
	mux.Handle("GET /admin/specializations", authed(s.handleSpecializations))
	mux.Handle("GET /admin/reservations", authed(s.handleReservations))
	mux.Handle("PATCH /admin/reservations/{id}/status", authed(s.handleReservationStatus))
	mux.Handle("GET /admin/doctors/{id}/license", authed(s.handleLicense))
	mux.Handle("GET /admin/hospitals/{id}/image", authed(s.handleImage))
	mux.Handle("POST /admin/hospitals/{id}/image", authed(s.handleImageUpload))
	mux.Handle("GET /admin/{entity}", authed(s.handleList))
	mux.Handle("POST /admin/{entity}", authed(s.handleCreate))
	mux.Handle("GET /admin/{entity}/{id}", authed(s.handleGet))
	mux.Handle("PUT /admin/{entity}/{id}", authed(s.handleUpdate))
	mux.Handle("DELETE /admin/{entity}/{id}", authed(s.handleDelete))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.hits[key]++
		f := s.faults[key]
		var status int
		if f != nil && f.remaining > 0 {
			f.remaining--
			status = f.status
		}
		s.mu.Unlock()

		if status != 0 {
			httpx.WriteError(w, status, http.StatusText(status))
			return
		}

		s.logger.Debug("fakeapi request", "method", r.Method, "path", r.URL.Path,
			"request_id", r.Header.Get(slogx.RequestIDHeader))
		mux.ServeHTTP(w, r)
	})
}

// AddAccount registers credentials accepted by the login endpoint.
func (s *Server) AddAccount(a Account) {
	if a.Subject == "" {
		a.Subject = a.Email
	}
	if a.Role == "" {
		a.Role = "admin"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.Email] = a
}

// Issue mints an active token without going through login.
func (s *Server) Issue(subject, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(subject, role, s.ttl)
}

// IssueExpired mints a token whose exp has already passed. It is still
// accepted by the refresh endpoint.
func (s *Server) IssueExpired(subject, role string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(subject, role, -time.Minute)
}

func (s *Server) issueLocked(subject, role string, ttl time.Duration) string {
	now := time.Now()
	jti := idx.New().String()

	token, err := s.signer.Sign(jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	})
	if err != nil {
		panic(fmt.Sprintf("fakeapi: signing token: %v", err))
	}

	s.active[jti] = true
	return token
}

// ExpireSessions makes every outstanding token fail with 401 on data
// routes. The tokens can still be refreshed.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.active)
}

// FailRefresh makes the refresh endpoint reject every request.
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// Fail answers the next n requests to "METHOD /path" with status.
func (s *Server) Fail(method, path string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = &fault{status: status, remaining: n}
}

// Refreshes counts refresh requests that issued a new token.
func (s *Server) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Hits counts requests to "METHOD /path", including injected failures.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// Seed appends records to entity's collection, assigning ids where missing.
func (s *Server) Seed(entity adminsdk.EntityType, records ...adminsdk.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		rec := copyRecord(r)
		if rec.ID() == "" {
			rec["id"] = s.newIDLocked()
		}
		s.records[entity] = append(s.records[entity], rec)
	}
}

// SeedReservations and SeedSpecializations fill the non-entity collections.
func (s *Server) SeedReservations(records ...adminsdk.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		rec := copyRecord(r)
		if rec.ID() == "" {
			rec["id"] = s.newIDLocked()
		}
		s.reserved = append(s.reserved, rec)
	}
}

func (s *Server) SeedSpecializations(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		s.specs = append(s.specs, adminsdk.Record{"id": s.newIDLocked(), "name": n})
	}
}

// SetLicense stores the license document served for a doctor.
func (s *Server) SetLicense(doctorID, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.licenses[doctorID] = file{contentType: contentType, data: data}
}

// Image returns the last image uploaded for a hospital.
func (s *Server) Image(hospitalID string) (string, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.images[hospitalID]
	return f.contentType, f.data, ok
}

func (s *Server) newIDLocked() int {
	s.nextID++
	return s.nextID
}

// verify accepts signed, unexpired tokens that are still active.
func (s *Server) verify(raw string) (*jwtx.Claims, error) {
	claims, err := s.signer.Verify(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active[claims.ID] || s.revoked[cryptox.FingerprintToken(raw)] {
		return nil, jwtx.ErrExpired
	}
	return claims, nil
}

func copyRecord(r adminsdk.Record) adminsdk.Record {
	if r == nil {
		return adminsdk.Record{}
	}
	return maps.Clone(r)
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func indexOf(records []adminsdk.Record, id string) int {
	return slices.IndexFunc(records, func(r adminsdk.Record) bool { return r.ID() == id })
}
