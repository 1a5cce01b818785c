package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired marks errors returned after the session could not
	// be renewed.
	ErrSessionExpired = errors.New("authsdk: session expired")

	// ErrMalformedResponse reports a 2xx response missing required fields.
	ErrMalformedResponse = errors.New("authsdk: malformed response")
)

// APIError is a non-2xx response from the authentication API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ServerMessage returns the message the server gave for the failure.
func (e *APIError) ServerMessage() string { return e.Message }

// Unauthorized reports whether the server rejected the session credential.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// TransportError means no response was received.
type TransportError struct {
	Op  string // e.g. "POST /auth/login"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoResponse always reports true: the server never answered.
func (e *TransportError) NoResponse() bool { return true }

// SessionExpiredError wraps the failure that could not be recovered by a
// refresh. It matches ErrSessionExpired and unwraps to Cause.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("%v: %v", ErrSessionExpired, e.Cause)
}

// SessionExpired always reports true.
func (e *SessionExpiredError) SessionExpired() bool { return true }

func (e *SessionExpiredError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Cause}
}

// IsUnauthorized reports whether err is a 401 APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// parseErrorResponse turns a non-2xx response body into an APIError.
// The API reports failures as {"message": "..."}; anything else falls back
// to the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Message != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
		}
		if errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
}
