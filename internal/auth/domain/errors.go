package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrChallengeExpired means the OTP or 2FA window elapsed; the user must
	// resend or restart, nothing retries automatically.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrBusy is returned when a step is submitted while another is in flight.
	ErrBusy = errors.New("operation already in progress")

	// ErrInvalidTransition is returned when an operation does not apply to
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrDisposed is returned by controllers after Dispose.
	ErrDisposed = errors.New("controller disposed")
)

// ValidationError is a client-side rejection raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Failures reported by the API client are recognised by behaviour, so this
// package does not depend on the client.
type (
	// statusError is a non-2xx answer from the server.
	statusError interface {
		error
		HTTPStatus() int
		ServerMessage() string
	}

	// noResponseError means the request never got an answer.
	noResponseError interface {
		error
		NoResponse() bool
	}

	// expiredError means the session could not be renewed.
	expiredError interface {
		error
		SessionExpired() bool
	}
)

// Kind classifies errors for presentation.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthFailure
	KindSessionExpired
	KindTransport
	KindChallengeExpired
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthFailure:
		return "auth_failure"
	case KindSessionExpired:
		return "session_expired"
	case KindTransport:
		return "transport"
	case KindChallengeExpired:
		return "challenge_expired"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Order matters: an expired session also wraps the
// status error that caused it.
func KindOf(err error) Kind {
	var (
		valErr       *ValidationError
		expiredErr   expiredError
		transportErr noResponseError
		apiErr       statusError
	)

	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &valErr):
		return KindValidation
	case errors.Is(err, ErrChallengeExpired):
		return KindChallengeExpired
	case errors.As(err, &expiredErr) && expiredErr.SessionExpired():
		return KindSessionExpired
	case errors.As(err, &transportErr) && transportErr.NoResponse():
		return KindTransport
	case errors.As(err, &apiErr):
		if apiErr.HTTPStatus() >= http.StatusInternalServerError {
			return KindServer
		}
		return KindAuthFailure
	default:
		return KindUnknown
	}
}

// Message returns the text to show a user for err.
func Message(err error) string {
	var (
		valErr *ValidationError
		apiErr statusError
	)

	switch KindOf(err) {
	case KindValidation:
		errors.As(err, &valErr)
		return valErr.Message
	case KindAuthFailure, KindServer:
		errors.As(err, &apiErr)
		return apiErr.ServerMessage()
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	case KindTransport:
		return "No response from server. Please try again later."
	case KindChallengeExpired:
		return "The code has expired. Please request a new one."
	default:
		if err == nil {
			return ""
		}
		return "An error occurred. Please try again."
	}
}
