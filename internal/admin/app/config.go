package app

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env       string `mapstructure:"ENV"`        // Environment (dev, staging, prod) (default: dev)
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // Log level (debug, info, warn, error) (default: info)
	LogFormat string `mapstructure:"LOG_FORMAT"` // Log format (json, text) (default: text)

	APIBaseURL string `mapstructure:"API_BASE_URL"` // Absolute URL, or a path resolved against APIOrigin (default: /api)
	APIOrigin  string `mapstructure:"API_ORIGIN"`   // Origin for a relative base URL (default: http://localhost:8000)

	DatabaseFile string `mapstructure:"DATABASE_FILE"`  // Path to SQLite database file (default: ./admin.db)
	TokenKey     string `mapstructure:"TOKEN_KEY"`      // Optional: key material for sealing the stored session
	TokenKeyPath string `mapstructure:"TOKEN_KEY_PATH"` // Optional: file holding the key material, wins over TOKEN_KEY
	Profile      string `mapstructure:"PROFILE"`        // Credential slot name (default: default)

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"` // Per-attempt timeout (default: 30s)
	MaxAttempts    int           `mapstructure:"MAX_ATTEMPTS"`    // Attempts for transient failures (default: 3)
	RetryDelay     time.Duration `mapstructure:"RETRY_DELAY"`     // Base linear backoff (default: 1s)

	PageSize        int           `mapstructure:"PAGE_SIZE"`        // Records per page for full loads (default: 200)
	PageConcurrency int           `mapstructure:"PAGE_CONCURRENCY"` // Concurrent page requests (default: 4)
	SearchDebounce  time.Duration `mapstructure:"SEARCH_DEBOUNCE"`  // Search input debounce (default: 350ms)
	WarmUpDelay     time.Duration `mapstructure:"WARMUP_DELAY"`     // Delay before background dataset load (default: 800ms)
	SearchLocale    string        `mapstructure:"SEARCH_LOCALE"`    // BCP 47 tag for case folding (default: und)

	AuditRetention       time.Duration `mapstructure:"AUDIT_RETENTION"`       // Age after which audit events are pruned (default: 720h)
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"` // Housekeeping interval (default: 1h)

	LoginPath   string `mapstructure:"LOGIN_PATH"`
	LogoutPath  string `mapstructure:"LOGOUT_PATH"`
	RefreshPath string `mapstructure:"REFRESH_PATH"`
}

var configKeys = []string{
	"ENV", "LOG_LEVEL", "LOG_FORMAT",
	"API_BASE_URL", "API_ORIGIN",
	"DATABASE_FILE", "TOKEN_KEY", "TOKEN_KEY_PATH", "PROFILE",
	"REQUEST_TIMEOUT", "MAX_ATTEMPTS", "RETRY_DELAY",
	"PAGE_SIZE", "PAGE_CONCURRENCY", "SEARCH_DEBOUNCE", "WARMUP_DELAY", "SEARCH_LOCALE",
	"AUDIT_RETENTION", "HOUSEKEEPING_INTERVAL",
	"LOGIN_PATH", "LOGOUT_PATH", "REFRESH_PATH",
}

// LoadConfig reads configuration from the environment, falling back to an
// optional .env file in the working directory.
func LoadConfig() (Config, error) {
	return loadConfig(".env")
}

func loadConfig(envFile string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("API_BASE_URL", "/api")
	v.SetDefault("API_ORIGIN", "http://localhost:8000")
	v.SetDefault("DATABASE_FILE", "admin.db")
	v.SetDefault("PROFILE", "default")
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_DELAY", time.Second)
	v.SetDefault("PAGE_SIZE", 200)
	v.SetDefault("PAGE_CONCURRENCY", 4)
	v.SetDefault("SEARCH_DEBOUNCE", 350*time.Millisecond)
	v.SetDefault("WARMUP_DELAY", 800*time.Millisecond)
	v.SetDefault("SEARCH_LOCALE", "und")
	v.SetDefault("AUDIT_RETENTION", 30*24*time.Hour)
	v.SetDefault("HOUSEKEEPING_INTERVAL", time.Hour)
	v.SetDefault("LOGIN_PATH", "/admin/login")
	v.SetDefault("LOGOUT_PATH", "/admin/logout")
	v.SetDefault("REFRESH_PATH", "/admin/refresh")

	// Bind explicitly so Unmarshal sees env values without a config file.
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine.
	if _, err := os.Stat(envFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	base, err := ResolveBaseURL(cfg.APIBaseURL, cfg.APIOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.APIBaseURL = base

	return cfg, nil
}

// ResolveBaseURL returns base unchanged when it is absolute, otherwise joins
// it onto origin.
func ResolveBaseURL(base, origin string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid API_BASE_URL %q: %w", base, err)
	}
	if u.IsAbs() {
		return strings.TrimSuffix(u.String(), "/"), nil
	}

	o, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || !o.IsAbs() || o.Host == "" {
		return "", fmt.Errorf("API_BASE_URL %q is relative and API_ORIGIN %q is not an absolute origin", base, origin)
	}

	return strings.TrimSuffix(o.ResolveReference(u).String(), "/"), nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}
