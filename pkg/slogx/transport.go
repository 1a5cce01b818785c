package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authflow/pkg/idx"
)

// HeaderRequestID is stamped on every outbound request.
const HeaderRequestID = "X-Request-ID"

// Transport logs outbound requests and stamps them with a request id.
// Bodies and headers are never logged: they carry credentials.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	reqID := r.Header.Get(HeaderRequestID)
	if reqID == "" {
		reqID = idx.New().String()
		// RoundTrippers must not mutate the caller's request.
		r = r.Clone(r.Context())
		r.Header.Set(HeaderRequestID, reqID)
	}

	// A logger scoped on the request context (e.g. to a login attempt)
	// wins over the transport's own.
	logger, ok := fromContext(r.Context())
	if !ok {
		logger = OrDefault(t.Logger)
	}
	logger = logger.With(
		"req_id", reqID,
		"method", r.Method,
		"path", r.URL.Path,
	)

	start := time.Now()
	resp, err := t.Base.RoundTrip(r)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		logger.Warn("http_client_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_client_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
