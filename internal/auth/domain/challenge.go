package domain

import (
	"errors"
	"sync"
	"time"
)

// Credentials are held only for the duration of a login attempt.
type Credentials struct {
	Email    string
	Password string
}

// ClearPassword drops the password once it is no longer needed.
func (c *Credentials) ClearPassword() { c.Password = "" }

// TwoFactorEnrollment exists between "setup requested" and "verified or
// cancelled".
type TwoFactorEnrollment struct {
	// SecretQRPayload is the raw material returned by the server, usually
	// an otpauth:// URL.
	SecretQRPayload string

	// Secret, Issuer and Account are filled in when the payload parses as
	// an otpauth URL; otherwise they are empty.
	Secret  string
	Issuer  string
	Account string

	PendingCode string
}

// Clock skew tolerated when deciding a temporary token is already dead.
const tempTokenLeeway = 5 * time.Second

// TemporaryAuthToken scopes the window between primary authentication and
// the second factor. It can be taken exactly once.
type TemporaryAuthToken struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// NewTemporaryAuthToken wraps raw. A zero expiresAt means the expiry is
// unknown and the server judges the token.
func NewTemporaryAuthToken(raw string, expiresAt time.Time) *TemporaryAuthToken {
	return &TemporaryAuthToken{value: raw, expiresAt: expiresAt}
}

// ExpiresAt returns the token expiry, zero when unknown.
func (t *TemporaryAuthToken) ExpiresAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiresAt
}

// Usable reports whether Take would succeed at now.
func (t *TemporaryAuthToken) Usable(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usable(now)
}

func (t *TemporaryAuthToken) usable(now time.Time) bool {
	if t.value == "" {
		return false
	}
	return t.expiresAt.IsZero() || now.Before(t.expiresAt.Add(tempTokenLeeway))
}

// Take returns the token value and discards it. A second Take, or a Take
// after expiry, returns ErrChallengeExpired.
func (t *TemporaryAuthToken) Take(now time.Time) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.usable(now) {
		t.value = ""
		return "", errors.Join(ErrChallengeExpired, errTempTokenGone)
	}

	v := t.value
	t.value = ""
	return v, nil
}

// Discard drops the token without using it.
func (t *TemporaryAuthToken) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = ""
}

var errTempTokenGone = errors.New("temporary token already used or expired")
