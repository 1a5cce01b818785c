package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/wire"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// AccountAPI is the subset of the HTTP client used for an authenticated
// account.
type AccountAPI interface {
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	Profile(ctx context.Context) (*authsdk.User, error)
	UpdateProfile(ctx context.Context, upd authsdk.ProfileUpdate) (*authsdk.User, error)
	UpdateProfilePic(ctx context.Context, filename string, r io.Reader) (*authsdk.User, error)
	DeleteProfilePic(ctx context.Context) (*authsdk.User, error)
	DeleteAccount(ctx context.Context) error
	ChangePassword(ctx context.Context, req authsdk.ChangePasswordRequest) error
	ResendEmailVerification(ctx context.Context) error
}

// Sessions is the SessionStore as the services use it.
type Sessions interface {
	Authenticated() bool
	User() (domain.UserProfile, bool)
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) error
	Clear(ctx context.Context) error
}

// AccountService runs profile, password and session-termination flows for
// the signed-in user and keeps the SessionStore in step with the server.
type AccountService struct {
	API      AccountAPI
	Sessions Sessions
	Logger   *slog.Logger
}

func (s *AccountService) logger() *slog.Logger {
	return slogx.OrDefault(s.Logger)
}

func (s *AccountService) requireSession() error {
	if !s.Sessions.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	return nil
}

// sessionUser returns the ID of the signed-in user.
func (s *AccountService) sessionUser() (string, error) {
	u, ok := s.Sessions.User()
	if !ok || !s.Sessions.Authenticated() {
		return "", domain.ErrNotAuthenticated
	}
	return u.ID, nil
}

// merge stores the server's view of the user the request was made for and
// returns the stored profile. A response for a user who is no longer signed
// in is dropped.
func (s *AccountService) merge(ctx context.Context, userID string, u *authsdk.User) (domain.UserProfile, error) {
	patch := domain.Replace(wire.Profile(*u))
	patch.ForUser = userID
	if err := s.Sessions.UpdateProfile(ctx, patch); err != nil {
		s.logger().Warn("profile updated but not persisted", "error", err)
	}

	profile, ok := s.Sessions.User()
	if !ok {
		return domain.UserProfile{}, domain.ErrNotAuthenticated
	}
	if profile.ID != userID {
		s.logger().Info("session changed during request, profile not merged", "user_id", userID)
	}
	return profile, nil
}

// RefreshProfile fetches the account and replaces the stored profile.
func (s *AccountService) RefreshProfile(ctx context.Context) (domain.UserProfile, error) {
	userID, err := s.sessionUser()
	if err != nil {
		return domain.UserProfile{}, err
	}
	u, err := s.API.Profile(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return s.merge(ctx, userID, u)
}

// UpdateProfile changes the non-nil fields of upd. A new email is
// normalized and validated before sending.
func (s *AccountService) UpdateProfile(ctx context.Context, upd authsdk.ProfileUpdate) (domain.UserProfile, error) {
	userID, err := s.sessionUser()
	if err != nil {
		return domain.UserProfile{}, err
	}
	if upd.Email != nil {
		email := domain.NormalizeEmail(*upd.Email)
		if err := domain.ValidateEmail(email); err != nil {
			return domain.UserProfile{}, err
		}
		upd.Email = &email
	}

	u, err := s.API.UpdateProfile(ctx, upd)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return s.merge(ctx, userID, u)
}

// UploadProfilePic replaces the avatar with the image read from r.
func (s *AccountService) UploadProfilePic(ctx context.Context, filename string, r io.Reader) (domain.UserProfile, error) {
	userID, err := s.sessionUser()
	if err != nil {
		return domain.UserProfile{}, err
	}
	if err := domain.ValidateRequired("profilePic", "Picture file name", filename); err != nil {
		return domain.UserProfile{}, err
	}

	u, err := s.API.UpdateProfilePic(ctx, filename, r)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return s.merge(ctx, userID, u)
}

// DeleteProfilePic removes the avatar.
func (s *AccountService) DeleteProfilePic(ctx context.Context) (domain.UserProfile, error) {
	userID, err := s.sessionUser()
	if err != nil {
		return domain.UserProfile{}, err
	}
	u, err := s.API.DeleteProfilePic(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return s.merge(ctx, userID, u)
}

// ChangePassword replaces the password. The new one must be long enough and
// differ from the current one.
func (s *AccountService) ChangePassword(ctx context.Context, current, next string) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	if err := domain.ValidateRequired("currentPassword", "Current password", current); err != nil {
		return err
	}
	if err := domain.ValidatePasswordChange(current, next); err != nil {
		return err
	}
	return s.API.ChangePassword(ctx, authsdk.ChangePasswordRequest{CurrentPassword: current, NewPassword: next})
}

// ResendEmailVerification mails a new verification link.
func (s *AccountService) ResendEmailVerification(ctx context.Context) error {
	if err := s.requireSession(); err != nil {
		return err
	}
	return s.API.ResendEmailVerification(ctx)
}

// Logout ends this session on the server. The local session is cleared
// whatever the server says.
func (s *AccountService) Logout(ctx context.Context) error {
	return s.terminate(ctx, "logout", s.API.Logout)
}

// LogoutAll ends every session of the account.
func (s *AccountService) LogoutAll(ctx context.Context) error {
	return s.terminate(ctx, "logout_all", s.API.LogoutAll)
}

// DeleteAccount deletes the account. The local session is cleared once the
// server confirms, or when the session had already expired, which is still
// reported. Any other failure leaves the user signed in.
func (s *AccountService) DeleteAccount(ctx context.Context) error {
	err := s.API.DeleteAccount(ctx)
	if err != nil && !errors.Is(err, authsdk.ErrSessionExpired) {
		s.logger().Warn("delete account failed", "kind", domain.KindOf(err))
		return err
	}
	return errors.Join(err, s.clear(ctx, "delete_account"))
}

// terminate runs call and then clears the local session. A session that had
// already expired counts as ended.
func (s *AccountService) terminate(ctx context.Context, op string, call func(context.Context) error) error {
	err := call(ctx)
	if errors.Is(err, authsdk.ErrSessionExpired) {
		err = nil
	}
	if err != nil {
		s.logger().Warn("server call failed, clearing local session anyway", "op", op, "kind", domain.KindOf(err))
	}
	return errors.Join(err, s.clear(ctx, op))
}

func (s *AccountService) clear(ctx context.Context, op string) error {
	err := s.Sessions.Clear(ctx)
	s.logger().Info("session terminated", "op", op)
	return err
}
