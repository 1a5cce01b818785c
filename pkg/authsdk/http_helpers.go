package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request describes one API call. The retry mark is per Request, so a
// Request value must not be reused for an unrelated call.
type Request struct {
	Method string
	Path   string

	// Body is JSON encoded when non-nil. Raw with ContentType takes
	// precedence and is sent verbatim (multipart uploads).
	Body        any
	Raw         []byte
	ContentType string

	// Bearer, when set, is sent as the Authorization header instead of
	// relying on the session cookies.
	Bearer string

	// NoRefresh disables the refresh protocol for this request.
	NoRefresh bool

	retried bool
}

// Retried reports whether this request has already been resent after a
// refresh.
func (r *Request) Retried() bool { return r.retried }

func (r *Request) encode() ([]byte, string, error) {
	if r.Raw != nil {
		return r.Raw, r.ContentType, nil
	}
	if r.Body == nil {
		return nil, "", nil
	}

	b, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}
	return b, "application/json", nil
}

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// send performs a single HTTP round trip without any refresh handling.
func (c *Client) send(ctx context.Context, r *Request, out any) error {
	payload, contentType, err := r.encode()
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.url(r.Path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.Bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: r.Method + " " + r.Path, Err: err}
	}

	return decodeJSON(resp, out)
}

// decodeJSON decodes a JSON response into target, which may be nil.
// Non-2xx responses become an APIError.
func decodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()

	// Read body once for both error parsing and success decoding
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: resp.Request.Method + " " + resp.Request.URL.Path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return nil
}
