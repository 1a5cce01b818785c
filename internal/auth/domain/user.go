package domain

// UserProfile is the authenticated account as the client knows it.
type UserProfile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	EmailVerified    bool   `json:"emailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	AvatarURL        string `json:"avatarUrl"`
}

// ProfilePatch is a partial update; nil fields are left untouched.
type ProfilePatch struct {
	Name             *string
	Username         *string
	Email            *string
	Phone            *string
	EmailVerified    *bool
	TwoFactorEnabled *bool
	AvatarURL        *string

	// ForUser, when set, limits the patch to the user with that ID.
	ForUser string
}

// AppliesTo reports whether p may be applied to u.
func (p ProfilePatch) AppliesTo(u UserProfile) bool {
	return p.ForUser == "" || p.ForUser == u.ID
}

// Apply returns a copy of u with the non-nil fields of p applied.
func (p ProfilePatch) Apply(u UserProfile) UserProfile {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.EmailVerified != nil {
		u.EmailVerified = *p.EmailVerified
	}
	if p.TwoFactorEnabled != nil {
		u.TwoFactorEnabled = *p.TwoFactorEnabled
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	return u
}

// IsZero reports whether the patch changes nothing.
func (p ProfilePatch) IsZero() bool {
	p.ForUser = ""
	return p == ProfilePatch{}
}

// Replace builds a patch that overwrites every field with u's values.
// Used when the server returns the full, authoritative user.
func Replace(u UserProfile) ProfilePatch {
	return ProfilePatch{
		Name:             &u.Name,
		Username:         &u.Username,
		Email:            &u.Email,
		Phone:            &u.Phone,
		EmailVerified:    &u.EmailVerified,
		TwoFactorEnabled: &u.TwoFactorEnabled,
		AvatarURL:        &u.AvatarURL,
	}
}

func ptr[T any](v T) *T { return &v }

// SetTwoFactor is shorthand for a patch flipping only the 2FA flag.
func SetTwoFactor(enabled bool) ProfilePatch {
	return ProfilePatch{TwoFactorEnabled: ptr(enabled)}
}

// SetEmailVerified is shorthand for a patch flipping only emailVerified.
func SetEmailVerified(verified bool) ProfilePatch {
	return ProfilePatch{EmailVerified: ptr(verified)}
}
