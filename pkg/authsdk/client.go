package authsdk

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/aussiebroadwan/authflow/pkg/httpx"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/singleflight"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger

	// CredentialLimit throttles CredentialPaths; DeliveryLimit throttles
	// DeliveryPaths. A zero RequestsPerWindow disables that limiter.
	CredentialLimit httpx.RateLimitConfig
	DeliveryLimit   httpx.RateLimitConfig

	// Transport is the innermost RoundTripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client is the gateway to the authentication API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnSessionExpired runs when the session could not be renewed, before
	// the SessionExpiredError is returned to the caller.
	OnSessionExpired func(ctx context.Context)

	refreshGroup singleflight.Group
}

// NewClient creates a Client with default timeouts and throttling.
func NewClient(baseURL string) *Client {
	return New(Config{
		BaseURL:         baseURL,
		CredentialLimit: httpx.StrictLimit,
		DeliveryLimit:   httpx.ModerateLimit,
	})
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	logger := slogx.OrDefault(cfg.Logger)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if cfg.CredentialLimit.RequestsPerWindow > 0 {
		rt = httpx.NewRateLimitTransport(rt, cfg.CredentialLimit, httpx.PathKeyExtractor(CredentialPaths...))
	}
	if cfg.DeliveryLimit.RequestsPerWindow > 0 {
		rt = httpx.NewRateLimitTransport(rt, cfg.DeliveryLimit, httpx.PathKeyExtractor(DeliveryPaths...))
	}
	rt = slogx.NewTransport(rt, logger)

	// cookiejar.New never returns an error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	return &Client{
		BaseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: rt,
			Jar:       jar,
		},
		Logger: logger,
	}
}

// Do sends req and decodes a successful JSON response into out (which may
// be nil). See the package documentation for the refresh protocol.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	err := c.send(ctx, req, out)
	if err == nil || req.NoRefresh || req.retried || !IsUnauthorized(err) {
		return err
	}

	req.retried = true

	if rerr := c.Refresh(ctx); rerr != nil {
		c.Logger.Warn("session refresh failed", "path", req.Path, "error", rerr)
		return c.expire(ctx, err)
	}

	err = c.send(ctx, req, out)
	if IsUnauthorized(err) {
		c.Logger.Warn("request rejected after refresh", "path", req.Path)
		return c.expire(ctx, err)
	}
	return err
}

// Refresh renews the session credential held in the cookie jar.
// Concurrent callers share a single in-flight refresh.
func (c *Client) Refresh(ctx context.Context) error {
	// The shared call must not die with whichever caller started it.
	sharedCtx := context.WithoutCancel(ctx)

	_, err, shared := c.refreshGroup.Do(PathRefreshToken, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(sharedCtx, c.HTTPClient.Timeout)
		defer cancel()

		return nil, c.send(refreshCtx, &Request{
			Method:    http.MethodPost,
			Path:      PathRefreshToken,
			NoRefresh: true,
		}, nil)
	})

	c.Logger.Debug("session refresh", "shared", shared, "ok", err == nil)
	return err
}

func (c *Client) expire(ctx context.Context, cause error) error {
	if c.OnSessionExpired != nil {
		c.OnSessionExpired(ctx)
	}
	return &SessionExpiredError{Cause: cause}
}
