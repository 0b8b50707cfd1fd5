package admin_test

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sahtee/admin/internal/admin/app"
	"github.com/sahtee/admin/internal/admin/fakeapi"
	"github.com/sahtee/admin/pkg/adminsdk"
)

/*
 * Common constants and helpers for admin console end-to-end tests. Each test
 * runs the full application (sqlite store, sealed token vault, gateway
 * client, dataset cache) against an in-process fake of the admin API.
 */

const (
	adminEmail    = "admin@sahtee.test"
	adminPassword = "Admin123!"
	adminSubject  = "admin-1"
)

// setupAdminAPI starts the fake API with one admin account.
func setupAdminAPI(t *testing.T) *fakeapi.Server {
	t.Helper()

	api := fakeapi.New(fakeapi.Options{})
	t.Cleanup(api.Close)

	api.AddAccount(fakeapi.Account{
		Email:    adminEmail,
		Password: adminPassword,
		Subject:  adminSubject,
		Role:     "admin",
	})
	return api
}

func testConfig(t *testing.T, baseURL string) app.Config {
	t.Helper()

	return app.Config{
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		APIBaseURL:           baseURL,
		DatabaseFile:         filepath.Join(t.TempDir(), "admin.db"),
		TokenKey:             "e2e-token-key-e2e-token-key-0000",
		Profile:              "default",
		RequestTimeout:       2 * time.Second,
		MaxAttempts:          2,
		RetryDelay:           time.Millisecond,
		PageSize:             10,
		PageConcurrency:      3,
		SearchDebounce:       20 * time.Millisecond,
		WarmUpDelay:          -1,
		SearchLocale:         "tr",
		AuditRetention:       time.Hour,
		HousekeepingInterval: time.Hour,
		LoginPath:            "/admin/login",
		LogoutPath:           "/admin/logout",
		RefreshPath:          "/admin/refresh",
	}
}

// setupApp builds the application against api.
func setupApp(t *testing.T, api *fakeapi.Server) *app.Application {
	t.Helper()

	return setupAppWithConfig(t, testConfig(t, api.URL))
}

func setupAppWithConfig(t *testing.T, cfg app.Config) *app.Application {
	t.Helper()

	a, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// performLogin logs in as the seeded admin and asserts the session.
func performLogin(t *testing.T, a *app.Application) adminsdk.SessionToken {
	t.Helper()

	session, err := a.Client().Login(t.Context(), adminEmail, adminPassword)
	require.NoError(t, err)
	require.True(t, session.Valid)
	require.Equal(t, adminSubject, session.Subject)
	require.Equal(t, "admin", session.Role)
	return session
}

// seedDoctors adds n doctors named "Doctor <i>".
func seedDoctors(api *fakeapi.Server, n int) {
	for i := 1; i <= n; i++ {
		api.Seed(adminsdk.Doctor, adminsdk.Record{
			"name":  fmt.Sprintf("Doctor %d", i),
			"email": fmt.Sprintf("doctor%d@sahtee.test", i),
		})
	}
}

// requireKind asserts err is an *adminsdk.Error of kind.
func requireKind(t *testing.T, err error, kind adminsdk.Kind) {
	t.Helper()

	require.Error(t, err)
	require.Truef(t, adminsdk.IsKind(err, kind), "want kind %s, got %v", kind, err)
}
