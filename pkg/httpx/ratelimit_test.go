package httpx_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authflow/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestPathKeyExtractor(t *testing.T) {
	t.Parallel()

	extractor := httpx.PathKeyExtractor("/auth/login", "/auth/verify-2fa")

	t.Run("matches suffix regardless of base path", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		require.Equal(t, "/auth/login", extractor(req))
	})

	t.Run("returns empty for unrelated paths", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
		require.Equal(t, "", extractor(req))
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_TEST_REQUESTS", "7")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_TEST_BURST", "bogus")

	cfg := httpx.ParseRateLimitFromEnv("TEST", httpx.StrictLimit)
	require.Equal(t, 7, cfg.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.Window)
	require.Equal(t, httpx.StrictLimit.Burst, cfg.Burst)
}

func TestRateLimitTransport(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T) (*httptest.Server, *atomic.Int32) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)
		return srv, &hits
	}

	config := httpx.RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}

	t.Run("blocks requests over limit before they leave the process", func(t *testing.T) {
		srv, hits := newServer(t)
		client := &http.Client{Transport: httpx.NewRateLimitTransport(nil, config, httpx.PathKeyExtractor("/auth/login"))}

		for i := range 3 {
			resp, err := client.Post(srv.URL+"/auth/login", "application/json", nil)
			require.NoError(t, err, "request %d should succeed", i+1)
			resp.Body.Close()
		}

		_, err := client.Post(srv.URL+"/auth/login", "application/json", nil)
		require.ErrorIs(t, err, httpx.ErrRateLimited)

		var rlErr *httpx.RateLimitError
		require.True(t, errors.As(err, &rlErr))
		require.GreaterOrEqual(t, rlErr.RetryAfter, time.Second)
		require.EqualValues(t, 3, hits.Load())
	})

	t.Run("unlimited paths pass through", func(t *testing.T) {
		srv, hits := newServer(t)
		client := &http.Client{Transport: httpx.NewRateLimitTransport(nil, config, httpx.PathKeyExtractor("/auth/login"))}

		for range 10 {
			resp, err := client.Get(srv.URL + "/auth/profile")
			require.NoError(t, err)
			resp.Body.Close()
		}
		require.EqualValues(t, 10, hits.Load())
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		srv, _ := newServer(t)
		tight := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
		client := &http.Client{Transport: httpx.NewRateLimitTransport(nil, tight, httpx.PathKeyExtractor("/auth/login", "/auth/send-otp"))}

		resp, err := client.Post(srv.URL+"/auth/login", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()

		_, err = client.Post(srv.URL+"/auth/login", "application/json", nil)
		require.ErrorIs(t, err, httpx.ErrRateLimited)

		resp, err = client.Post(srv.URL+"/auth/send-otp", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
	})
}
