package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/cryptox"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"golang.org/x/sync/singleflight"
)

// RecoveryAPI is the subset of the HTTP client used for flows that run
// without a session.
type RecoveryAPI interface {
	SignUp(ctx context.Context, req authsdk.SignUpRequest) (string, error)
	ForgotPassword(ctx context.Context, email string) error
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, req authsdk.ResetPasswordRequest) error
	VerifyEmail(ctx context.Context, token string) (*authsdk.EmailVerification, error)
}

// RecoveryService runs sign-up, password reset and email verification.
type RecoveryService struct {
	API      RecoveryAPI
	Sessions Sessions
	Logger   *slog.Logger

	verifyGroup singleflight.Group
	mu          sync.Mutex
	// verified caches settled verification outcomes by token fingerprint.
	verified map[string]verifyOutcome
}

type verifyOutcome struct {
	result *authsdk.EmailVerification
	err    error
}

func (s *RecoveryService) logger() *slog.Logger {
	return slogx.OrDefault(s.Logger)
}

// SignUp validates the form and registers the account. The returned
// message comes from the server.
func (s *RecoveryService) SignUp(ctx context.Context, req authsdk.SignUpRequest) (string, error) {
	req.Email = domain.NormalizeEmail(req.Email)

	checks := []error{
		domain.ValidateRequired("name", "Name", req.Name),
		domain.ValidateRequired("username", "Username", req.Username),
		domain.ValidateEmail(req.Email),
		domain.ValidatePassword(req.Password),
		domain.ValidatePasswordConfirmation(req.Password, req.ConfirmPassword),
		domain.ValidateRequired("phone", "Phone number", req.Phone),
	}
	for _, err := range checks {
		if err != nil {
			return "", err
		}
	}

	msg, err := s.API.SignUp(ctx, req)
	if err != nil {
		return "", err
	}
	s.logger().Info("account registered")
	return msg, nil
}

// ForgotPassword mails a reset link.
func (s *RecoveryService) ForgotPassword(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return err
	}
	return s.API.ForgotPassword(ctx, email)
}

// ValidateResetToken checks a reset link before the form is shown.
func (s *RecoveryService) ValidateResetToken(ctx context.Context, token string) error {
	if err := domain.ValidateRequired("resetToken", "Reset token", token); err != nil {
		return err
	}
	return s.API.ValidateResetToken(ctx, token)
}

// ResetPassword validates the token with the server, then sets the new
// password.
func (s *RecoveryService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if err := domain.ValidatePassword(password); err != nil {
		return err
	}
	if err := domain.ValidatePasswordConfirmation(password, confirm); err != nil {
		return err
	}
	if err := s.ValidateResetToken(ctx, token); err != nil {
		return err
	}

	return s.API.ResetPassword(ctx, authsdk.ResetPasswordRequest{
		ResetToken:      token,
		NewPassword:     password,
		ConfirmPassword: confirm,
	})
}

// VerifyEmail submits a verification token at most once. Concurrent calls
// for the same token share one request; once the server has answered,
// later calls get the same outcome without a request. Transport failures
// are not remembered so the user can retry. On success a signed-in user's
// profile is marked verified.
func (s *RecoveryService) VerifyEmail(ctx context.Context, token string) (*authsdk.EmailVerification, error) {
	if err := domain.ValidateRequired("token", "Verification token", token); err != nil {
		return nil, err
	}
	key := cryptox.FingerprintToken(token)

	s.mu.Lock()
	if out, ok := s.verified[key]; ok {
		s.mu.Unlock()
		return out.result, out.err
	}
	s.mu.Unlock()

	v, err, shared := s.verifyGroup.Do(key, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		ctx := context.WithoutCancel(ctx)
		res, err := s.API.VerifyEmail(ctx, token)
		if domain.KindOf(err) != domain.KindTransport {
			s.mu.Lock()
			if s.verified == nil {
				s.verified = make(map[string]verifyOutcome)
			}
			s.verified[key] = verifyOutcome{result: res, err: err}
			s.mu.Unlock()
		}
		if err != nil {
			return nil, err
		}

		if res.EmailVerified && s.Sessions != nil && s.Sessions.Authenticated() {
			if err := s.Sessions.UpdateProfile(ctx, domain.SetEmailVerified(true)); err != nil {
				s.logger().Warn("email verified but profile not persisted", "error", err)
			}
		}
		return res, nil
	})
	if shared {
		s.logger().Debug("email verification shared with an in-flight call")
	}
	if err != nil {
		return nil, err
	}
	return v.(*authsdk.EmailVerification), nil
}
