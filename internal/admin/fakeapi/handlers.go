package fakeapi

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/sahtee/admin/pkg/adminsdk"
	"github.com/sahtee/admin/pkg/cryptox"
	"github.com/sahtee/admin/pkg/httpx"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[req.Email]
	if !ok || acct.Password != req.Password {
		httpx.WriteValidationError(w, "The given data was invalid.", map[string][]string{
			"email": {"These credentials do not match our records."},
		})
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"access_token": s.issueLocked(acct.Subject, acct.Role, s.ttl),
		"token_type":   "bearer",
	})
}

// handleRefresh trades any token this server signed, expired or not, for a
// fresh one, unless it was logged out.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := httpx.BearerToken(r)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}

	claims, err := s.signer.VerifySignature(raw)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "Token is invalid.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRefresh || s.revoked[cryptox.FingerprintToken(raw)] {
		httpx.WriteError(w, http.StatusUnauthorized, "Token has expired and can no longer be refreshed.")
		return
	}

	delete(s.active, claims.ID)
	s.refreshes++
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"data": map[string]string{"token": s.issueLocked(claims.Subject, claims.Role, s.ttl)},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	raw := httpx.TokenFromContext(r.Context())
	claims, _ := httpx.ClaimsFromContext(r.Context())

	s.mu.Lock()
	s.revoked[cryptox.FingerprintToken(raw)] = true
	if claims != nil {
		delete(s.active, claims.ID)
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) entity(w http.ResponseWriter, r *http.Request) (adminsdk.EntityType, bool) {
	entity, err := adminsdk.ParseEntityType(r.PathValue("entity"))
	if err != nil {
		httpx.WriteError(w, http.StatusNotFound, "Not Found")
		return "", false
	}
	return entity, true
}

// writePage slices records and writes them in a Laravel paginator shape. Users
// come back keyed by collection name, everything else under data + meta.
func writePage(w http.ResponseWriter, r *http.Request, key string, records []adminsdk.Record) {
	perPage := min(queryInt(r, "per_page", defaultPerPage), maxPerPage)
	page := queryInt(r, "page", 1)
	total := len(records)
	lastPage := max(1, (total+perPage-1)/perPage)

	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)
	items := records[start:end]
	if items == nil {
		items = []adminsdk.Record{}
	}

	meta := map[string]any{
		"current_page": page,
		"last_page":    lastPage,
		"per_page":     perPage,
		"total":        total,
	}

	if key == "users" {
		body := map[string]any{"data": items}
		maps.Copy(body, meta)
		httpx.WriteJSON(w, http.StatusOK, map[string]any{key: body})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	records := slices.Clone(s.records[entity])
	s.mu.Unlock()

	writePage(w, r, entity.CollectionKey(), records)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.records[entity], r.PathValue("id"))
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, fmt.Sprintf("%s not found", entity))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": s.records[entity][i]})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}

	var fields adminsdk.Record
	if err := decodeBody(r, &fields); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(fields.String("name")) == "" {
		httpx.WriteValidationError(w, "The name field is required.", map[string][]string{
			"name": {"The name field is required."},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copyRecord(fields)
	rec["id"] = s.newIDLocked()
	s.records[entity] = append(s.records[entity], rec)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"data": rec})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}

	var fields adminsdk.Record
	if err := decodeBody(r, &fields); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.records[entity], r.PathValue("id"))
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, fmt.Sprintf("%s not found", entity))
		return
	}

	rec := copyRecord(s.records[entity][i])
	for k, v := range fields {
		if k != "id" {
			rec[k] = v
		}
	}
	s.records[entity][i] = rec
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.records[entity], r.PathValue("id"))
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, fmt.Sprintf("%s not found", entity))
		return
	}
	s.records[entity] = slices.Delete(s.records[entity], i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSpecializations(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	specs := slices.Clone(s.specs)
	s.mu.Unlock()

	if specs == nil {
		specs = []adminsdk.Record{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": specs})
}

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	records := slices.Clone(s.reserved)
	s.mu.Unlock()

	writePage(w, r, "reservations", records)
}

func (s *Server) handleReservationStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil || !slices.Contains(adminsdk.ReservationStatuses, req.Status) {
		httpx.WriteValidationError(w, "The selected status is invalid.", map[string][]string{
			"status": {"The selected status is invalid."},
		})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.reserved, r.PathValue("id"))
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, "reservation not found")
		return
	}
	rec := copyRecord(s.reserved[i])
	rec["status"] = req.Status
	s.reserved[i] = rec
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"reservation": rec})
}

func writeFile(w http.ResponseWriter, f file) {
	if f.contentType != "" {
		w.Header().Set("Content-Type", f.contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.data)
}

func (s *Server) handleLicense(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.licenses[r.PathValue("id")]
	s.mu.Unlock()

	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "license not found")
		return
	}
	writeFile(w, f)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.images[r.PathValue("id")]
	s.mu.Unlock()

	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "image not found")
		return
	}
	writeFile(w, f)
}

func (s *Server) handleImageUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := r.ParseMultipartForm(adminsdk.MaxUploadSize); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	part, header, err := r.FormFile("image")
	if err != nil {
		httpx.WriteValidationError(w, "The image field is required.", map[string][]string{
			"image": {"The image field is required."},
		})
		return
	}
	defer func() { _ = part.Close() }()

	data, err := io.ReadAll(part)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "unreadable image")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.records[adminsdk.Hospital], id)
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, "hospital not found")
		return
	}

	s.images[id] = file{contentType: header.Header.Get("Content-Type"), data: data}
	rec := copyRecord(s.records[adminsdk.Hospital][i])
	rec["image_url"] = "/admin/hospitals/" + id + "/image"
	s.records[adminsdk.Hospital][i] = rec
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"data": rec})
}
