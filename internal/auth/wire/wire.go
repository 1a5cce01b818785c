// Package wire converts API payloads into domain values.
package wire

import (
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/jwtx"
)

// Profile converts the user returned by the API into a UserProfile.
func Profile(u authsdk.User) domain.UserProfile {
	return domain.UserProfile{
		ID:               u.ID,
		Name:             u.Name,
		Username:         u.Username,
		Email:            u.Email,
		Phone:            u.Phone,
		EmailVerified:    u.EmailVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		AvatarURL:        u.ProfilePic,
	}
}

// TemporaryToken wraps the token issued when a login needs a second factor.
// When it is a JWT its exp claim is read, without verification, so a dead
// token is never sent; opaque tokens are left to the server to judge.
func TemporaryToken(raw string) *domain.TemporaryAuthToken {
	var expiresAt time.Time
	if claims, err := jwtx.Peek(raw); err == nil {
		expiresAt = claims.Expiry()
	}
	return domain.NewTemporaryAuthToken(raw, expiresAt)
}
