package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// Claims are the fields the client cares about in tokens it holds but
// cannot verify. The signature belongs to the server; the client only
// reads timing claims to avoid sending a token it already knows is dead.
type Claims struct {
	jwt.RegisteredClaims

	// Purpose narrows what a token may be used for, e.g. "2fa".
	Purpose string `json:"purpose,omitempty"`
}

// Peek decodes the claims of a compact JWT without verifying the
// signature. Opaque tokens (anything that is not a three segment JWT)
// return ErrMalformed so callers can fall back to treating them as opaque.
func Peek(token string) (*Claims, error) {
	if strings.Count(token, ".") != 2 {
		return nil, ErrMalformed
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	return &claims, nil
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateExpiryWithLeeway checks exp and nbf at now, with a small grace
// period for clock skew between client and server.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
