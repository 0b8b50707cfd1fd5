package httpx

import (
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Client-side profiles. The admin API throttles too, these keep a runaway
// caller (a stuck retry loop, a search fan-out) from tripping it.
// Override with RATELIMIT_{GATEWAY,DATASET}_{REQUESTS,WINDOW_SEC,BURST}.
var (
	// GatewayLimit applies to interactive calls per caller key.
	GatewayLimit = RateLimitConfig{
		RequestsPerWindow: 120,
		Window:            time.Minute,
		Burst:             30,
	}

	// DatasetLimit applies to full-dataset page fan-out per entity type.
	DatasetLimit = RateLimitConfig{
		RequestsPerWindow: 600,
		Window:            time.Minute,
		Burst:             50,
	}
)

func init() {
	GatewayLimit = ParseRateLimitFromEnv("GATEWAY", GatewayLimit)
	DatasetLimit = ParseRateLimitFromEnv("DATASET", DatasetLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_GATEWAY_REQUESTS, RATELIMIT_GATEWAY_WINDOW_SEC, RATELIMIT_GATEWAY_BURST
// Invalid or non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// Limiter admits or rejects calls per caller key using a token bucket per
// key. It never blocks: a rejected call fails fast and is not retried.
type Limiter struct {
	config   RateLimitConfig
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewLimiter creates a Limiter for config.
func NewLimiter(config RateLimitConfig) *Limiter {
	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()

	return &Limiter{
		config:      config,
		rate:        rate.Limit(ratePerSecond),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}
}

// Config returns the configuration the limiter was built with.
func (l *Limiter) Config() RateLimitConfig { return l.config }

// Allow reports whether a call for key may proceed now. When it may not,
// retryAfter is the wait until the next token.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	limiter := l.getLimiter(key)
	if limiter.Allow() {
		return true, 0
	}

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel() // don't consume the token we only peeked at

	return false, max(delay, time.Millisecond)
}

func (l *Limiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(l.rate, l.burst)
	actual, _ := l.limiters.LoadOrStore(key, limiter)

	l.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters with full buckets so ephemeral keys don't
// accumulate.
func (l *Limiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
