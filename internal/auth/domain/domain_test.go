package domain_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		valid bool
	}{
		{"ada@example.com", true},
		{"a.b+tag@sub.example.io", true},
		{"", false},
		{"ada@", false},
		{"ada@example", false},
		{"ada@example.c", false},
		{"Ada@Example.com", false}, // callers normalize first
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := domain.ValidateEmail(tt.in)
			if tt.valid {
				require.NoError(t, err)
				return
			}
			require.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}

	require.NoError(t, domain.ValidateEmail(domain.NormalizeEmail("  Ada@Example.com ")))
}

func TestValidatePasswordAndCodes(t *testing.T) {
	t.Parallel()

	require.Error(t, domain.ValidatePassword("12345"))
	require.NoError(t, domain.ValidatePassword("123456"))

	require.NoError(t, domain.ValidateCode("012345"))
	require.Error(t, domain.ValidateCode("12345"))
	require.Error(t, domain.ValidateCode("12a456"))

	require.Error(t, domain.ValidatePasswordChange("secret1", "secret1"))
	require.Error(t, domain.ValidatePasswordChange("secret1", "short"))
	require.NoError(t, domain.ValidatePasswordChange("secret1", "secret2"))

	require.Error(t, domain.ValidatePasswordConfirmation("a", "b"))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	unauthorized := &authsdk.APIError{StatusCode: http.StatusUnauthorized, Message: "jwt expired"}

	tests := []struct {
		name string
		err  error
		want domain.Kind
	}{
		{"nil", nil, domain.KindUnknown},
		{"validation", &domain.ValidationError{Field: "email", Message: "bad"}, domain.KindValidation},
		{"auth failure", &authsdk.APIError{StatusCode: http.StatusBadRequest, Message: "Invalid OTP"}, domain.KindAuthFailure},
		{"server", &authsdk.APIError{StatusCode: http.StatusBadGateway}, domain.KindServer},
		{"session expired wraps api error", &authsdk.SessionExpiredError{Cause: unauthorized}, domain.KindSessionExpired},
		{"transport", &authsdk.TransportError{Op: "GET /auth/profile", Err: errors.New("connection refused")}, domain.KindTransport},
		{"challenge expired", fmt.Errorf("verify: %w", domain.ErrChallengeExpired), domain.KindChallengeExpired},
		{"plain", errors.New("boom"), domain.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, domain.KindOf(tt.err))
			if tt.err != nil {
				require.NotEmpty(t, domain.Message(tt.err))
			}
		})
	}
}

func TestSessionEncodeDecode(t *testing.T) {
	t.Parallel()

	u := domain.UserProfile{ID: "1", Name: "Ada", Email: "ada@example.com", TwoFactorEnabled: true}

	b, err := domain.EncodeSession(domain.Session{User: &u, Authenticated: true})
	require.NoError(t, err)

	got, err := domain.DecodeSession(b)
	require.NoError(t, err)
	require.True(t, got.Authenticated)
	require.Equal(t, u, *got.User)

	for name, raw := range map[string]string{
		"garbage":           `{not json`,
		"wrong version":     `{"v":2,"user":null,"authenticated":false}`,
		"auth without user": `{"v":1,"user":null,"authenticated":true}`,
		"user without auth": `{"v":1,"user":{"id":"1"},"authenticated":false}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := domain.DecodeSession([]byte(raw))
			require.ErrorIs(t, err, domain.ErrMalformedState)
		})
	}
}

func TestProfilePatchApply(t *testing.T) {
	t.Parallel()

	u := domain.UserProfile{Name: "Ada", Email: "ada@example.com"}
	got := domain.SetTwoFactor(true).Apply(u)

	require.True(t, got.TwoFactorEnabled)
	require.Equal(t, "Ada", got.Name)
	require.False(t, u.TwoFactorEnabled, "Apply must not mutate its input")
	require.True(t, domain.ProfilePatch{}.IsZero())
	require.True(t, domain.ProfilePatch{ForUser: "u1"}.IsZero())
}

func TestProfilePatchAppliesTo(t *testing.T) {
	t.Parallel()

	u := domain.UserProfile{ID: "u1"}
	require.True(t, domain.SetTwoFactor(true).AppliesTo(u))

	p := domain.SetTwoFactor(true)
	p.ForUser = "u1"
	require.True(t, p.AppliesTo(u))
	p.ForUser = "u2"
	require.False(t, p.AppliesTo(u))
}

func TestTemporaryAuthTokenSingleUse(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tok := domain.NewTemporaryAuthToken("opaque-temp-token", time.Time{})

	v, err := tok.Take(now)
	require.NoError(t, err)
	require.Equal(t, "opaque-temp-token", v)

	_, err = tok.Take(now)
	require.ErrorIs(t, err, domain.ErrChallengeExpired)
}

func TestTemporaryAuthTokenExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tok := domain.NewTemporaryAuthToken("temp-token", now.Add(time.Minute))
	require.Equal(t, now.Add(time.Minute), tok.ExpiresAt())
	require.True(t, tok.Usable(now))
	require.False(t, tok.Usable(now.Add(2*time.Minute)))

	_, err := tok.Take(now.Add(2 * time.Minute))
	require.ErrorIs(t, err, domain.ErrChallengeExpired)
	require.False(t, tok.Usable(now), "expired take also discards")
}
