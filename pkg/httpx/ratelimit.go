package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by RateLimitTransport when a request is
// throttled locally and never leaves the process.
var ErrRateLimited = errors.New("httpx: rate limit exceeded")

// RateLimitError carries how long the caller should wait before retrying.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

var (
	// StrictLimit for credential submission (login, OTP, 2FA codes).
	// Mirrors the server's brute force budget so the client gives up
	// locally instead of burning attempts.
	// Override with: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC, RATELIMIT_STRICT_BURST
	StrictLimit = RateLimitConfig{
		RequestsPerWindow: 5,
		Window:            time.Minute,
		Burst:             5,
	}

	// ModerateLimit for code delivery (send/resend OTP, verification mail).
	// Override with: RATELIMIT_MODERATE_REQUESTS, RATELIMIT_MODERATE_WINDOW_SEC, RATELIMIT_MODERATE_BURST
	ModerateLimit = RateLimitConfig{
		RequestsPerWindow: 20,
		Window:            time.Minute,
		Burst:             20,
	}
)

func init() {
	StrictLimit = ParseRateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = ParseRateLimitFromEnv("MODERATE", ModerateLimit)
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_STRICT_REQUESTS, RATELIMIT_STRICT_WINDOW_SEC, RATELIMIT_STRICT_BURST
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

// KeyExtractor groups outbound requests for rate limiting. An empty key
// means the request is not limited.
type KeyExtractor func(*http.Request) string

// PathKeyExtractor limits only requests whose URL path ends with one of
// suffixes, keyed by that suffix. Suffix matching keeps the extractor
// independent of the API base path.
func PathKeyExtractor(suffixes ...string) KeyExtractor {
	return func(r *http.Request) string {
		for _, s := range suffixes {
			if strings.HasSuffix(r.URL.Path, s) {
				return s
			}
		}
		return ""
	}
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// getLimiter retrieves or creates a rate limiter for the given key.
// Keys come from a fixed set of paths so limiters are never evicted.
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	actual, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return actual.(*rate.Limiter)
}

// RateLimitTransport throttles outbound requests before they reach next.
type RateLimitTransport struct {
	next   http.RoundTripper
	key    KeyExtractor
	config RateLimitConfig
	rl     *rateLimiter
}

// NewRateLimitTransport wraps next (http.DefaultTransport when nil).
func NewRateLimitTransport(next http.RoundTripper, config RateLimitConfig, key KeyExtractor) *RateLimitTransport {
	if next == nil {
		next = http.DefaultTransport
	}

	ratePerSecond := float64(config.RequestsPerWindow) / config.Window.Seconds()

	return &RateLimitTransport{
		next:   next,
		key:    key,
		config: config,
		rl: &rateLimiter{
			rate:  rate.Limit(ratePerSecond),
			burst: config.Burst,
		},
	}
}

func (t *RateLimitTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	key := t.key(r)
	if key == "" {
		return t.next.RoundTrip(r)
	}

	limiter := t.rl.getLimiter(key)
	if !limiter.Allow() {
		// Peek at when the next token lands without consuming it.
		reservation := limiter.Reserve()
		delay := reservation.Delay()
		reservation.Cancel()

		slogx.FromContext(r.Context()).Warn("rate limit exceeded",
			"key", key,
			"retry_after", delay.String(),
		)

		if r.Body != nil {
			_ = r.Body.Close()
		}
		return nil, &RateLimitError{Key: key, RetryAfter: max(delay, time.Second)}
	}

	return t.next.RoundTrip(r)
}
