package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "http://localhost:8000/api", cfg.APIBaseURL)
	require.Equal(t, "admin.db", cfg.DatabaseFile)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, time.Second, cfg.RetryDelay)
	require.Equal(t, 200, cfg.PageSize)
	require.Equal(t, 4, cfg.PageConcurrency)
	require.Equal(t, 350*time.Millisecond, cfg.SearchDebounce)
	require.Equal(t, 800*time.Millisecond, cfg.WarmUpDelay)
	require.Equal(t, 30*24*time.Hour, cfg.AuditRetention)
	require.Equal(t, "/admin/refresh", cfg.RefreshPath)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://admin.example.com/v2/")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("PAGE_SIZE", "50")
	t.Setenv("REFRESH_PATH", "/auth/refresh")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	require.Equal(t, "https://admin.example.com/v2", cfg.APIBaseURL)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, 5, cfg.MaxAttempts)
	require.Equal(t, 50, cfg.PageSize)
	require.Equal(t, "/auth/refresh", cfg.RefreshPath)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("API_ORIGIN=https://staging.example.com\nDATABASE_FILE=/tmp/staging.db\n"), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "https://staging.example.com/api", cfg.APIBaseURL)
	require.Equal(t, "/tmp/staging.db", cfg.DatabaseFile)
}

func TestResolveBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		origin  string
		want    string
		wantErr bool
	}{
		{name: "absolute base wins", base: "https://api.example.com/", origin: "http://ignored", want: "https://api.example.com"},
		{name: "relative base joined", base: "/api", origin: "http://localhost:8000", want: "http://localhost:8000/api"},
		{name: "origin trailing slash", base: "/api", origin: "http://localhost:8000/", want: "http://localhost:8000/api"},
		{name: "relative origin rejected", base: "/api", origin: "localhost", wantErr: true},
		{name: "empty origin rejected", base: "/api", origin: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ResolveBaseURL(tt.base, tt.origin)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
