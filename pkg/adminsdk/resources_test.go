package adminsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sahtee/admin/pkg/audit"
	"github.com/sahtee/admin/pkg/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityTypes(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"doctor", "Doctors", " DOCTOR "} {
		e, err := ParseEntityType(in)
		require.NoError(t, err)
		require.Equal(t, Doctor, e)
	}

	_, err := ParseEntityType("patients")
	require.Error(t, err)

	require.Equal(t, "/admin/hospitals", Hospital.Path())
	require.Equal(t, "nurses", Nurse.CollectionKey())
	require.Contains(t, Doctor.SearchFields(), "specialization.name")
	require.False(t, EntityType("patient").Valid())
}

func TestRecordLookup(t *testing.T) {
	t.Parallel()

	rec := Record{
		"name":           "Dr. Ana",
		"specialization": map[string]any{"name": "Cardiology"},
		"hospital":       nil,
		"active":         true,
	}

	require.Equal(t, "Cardiology", rec.String("specialization.name"))
	require.Equal(t, "", rec.String("hospital.name"))
	require.Equal(t, "", rec.String("specialization"))
	require.Equal(t, "true", rec.String("active"))

	_, ok := rec.Lookup("name.first")
	require.False(t, ok)
}

func TestResources(t *testing.T) {
	t.Parallel()

	token := mintToken(t, "admin-1", time.Now().Add(time.Hour))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/doctors", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("per_page"))
		writeJSON(w, http.StatusOK, `{"data":{"data":[{"id":51}],"current_page":2,"last_page":2,"total":51,"per_page":50}}`)
	})
	mux.HandleFunc("GET /admin/doctors/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			writeJSON(w, http.StatusNotFound, `{"message":"Not found"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"doctor":{"id":1,"name":"Dr. Ana"}}`)
	})
	mux.HandleFunc("DELETE /admin/nurses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /admin/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"Sam"}`, string(body))
		writeJSON(w, http.StatusOK, `{"id":3,"name":"Sam"}`)
	})
	mux.HandleFunc("POST /admin/hospitals", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"message":"This action is unauthorized."}`)
	})
	mux.HandleFunc("GET /admin/specializations", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"specializations":[{"id":1,"name":"Cardiology"}]}`)
	})
	mux.HandleFunc("PATCH /admin/reservations/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"status":"confirmed"}`, string(body))
		writeJSON(w, http.StatusOK, `{"data":{"id":9,"status":"confirmed"}}`)
	})
	mux.HandleFunc("GET /admin/doctors/{id}/license", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1" {
			writeJSON(w, http.StatusNotFound, `{"message":"No license"}`)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4 license"))
	})

	client, sink := newTestClient(t, mux, token)

	var mutations []EntityType
	client.OnMutation = func(e EntityType) { mutations = append(mutations, e) }

	ctx := context.Background()

	page, err := client.ListPage(ctx, Doctor, 2, 50)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 2, page.LastPage)

	rec, err := client.GetRecord(ctx, Doctor, "1")
	require.NoError(t, err)
	require.Equal(t, "Dr. Ana", rec.String("name"))

	rec, err = client.GetRecord(ctx, Doctor, "404")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, client.DeleteRecord(ctx, Nurse, "5"))

	rec, err = client.UpdateRecord(ctx, User, "3", map[string]any{"name": " Sam "})
	require.NoError(t, err)
	require.Equal(t, "Sam", rec.String("name"))

	_, err = client.CreateRecord(ctx, Hospital, map[string]any{"name": "x"})
	require.Equal(t, http.StatusForbidden, StatusCode(err))
	require.Equal(t, 1, sink.Count(audit.EventForbidden))

	require.Equal(t, []EntityType{Nurse, User}, mutations)

	specs, err := client.ListSpecializations(ctx)
	require.NoError(t, err)
	require.Equal(t, "Cardiology", specs[0].String("name"))

	res, err := client.UpdateReservationStatus(ctx, "9", "confirmed")
	require.NoError(t, err)
	require.Equal(t, "confirmed", res.String("status"))

	_, err = client.UpdateReservationStatus(ctx, "9", "teleported")
	require.True(t, IsKind(err, KindValidation))

	license, err := client.DoctorLicense(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", license.ContentType)

	license, err = client.DoctorLicense(ctx, "2")
	require.NoError(t, err)
	require.Nil(t, license)

	_, err = client.ListPage(ctx, EntityType("patient"), 1, 10)
	require.True(t, IsKind(err, KindValidation))
}

func TestBulkListerSkipsInteractiveLimiter(t *testing.T) {
	t.Parallel()

	token := mintToken(t, "admin-1", time.Now().Add(time.Hour))
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"data":[{"id":1}]}`)
	}), token)
	client.Limiter = httpx.NewLimiter(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1})

	bulk := BulkLister{Client: client}
	for range 5 {
		_, err := bulk.ListPage(context.Background(), Hospital, 1, 200)
		require.NoError(t, err)
	}
}

func TestLoginLogout(t *testing.T) {
	t.Parallel()

	issued := mintToken(t, "admin-7", time.Now().Add(time.Hour))

	var logouts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"email":"admin@sahtee.test","password":"p<a>ss"}`, string(body))
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"data":{"access_token":%q}}`, issued))
	})
	mux.HandleFunc("POST /admin/logout", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+issued, r.Header.Get("Authorization"))
		logouts.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"message":"boom"}`)
	})

	client, sink := newTestClient(t, mux, "")
	ctx := context.Background()

	_, err := client.Login(ctx, "", "x")
	require.True(t, IsKind(err, KindValidation))

	session, err := client.Login(ctx, " admin@sahtee.test ", "p<a>ss")
	require.NoError(t, err)
	require.Equal(t, "admin-7", session.Subject)
	require.Equal(t, "admin", session.Role)

	current, err := client.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, issued, current.Value)

	// Server-side failure still clears the local session.
	require.NoError(t, client.Logout(ctx))
	require.EqualValues(t, 1, logouts.Load())

	_, err = client.Session(ctx)
	require.True(t, IsKind(err, KindMissingToken))

	require.Equal(t, 1, sink.Count(audit.EventLogin))
	require.Equal(t, 1, sink.Count(audit.EventLogout))
}
