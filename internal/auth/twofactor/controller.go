// Package twofactor manages persistent TOTP two-factor authentication:
// enrollment on an authenticated account and the second step of a login.
package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/wire"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"github.com/pquerna/otp"
)

// ErrNoQRCode is returned when the enrollment payload cannot be rendered.
var ErrNoQRCode = errors.New("enrollment payload is not a QR code")

const (
	otpauthScheme = "otpauth://"
	pngDataPrefix = "data:image/png;base64,"
)

// API is the subset of the HTTP client this controller calls.
type API interface {
	SetupTwoFactor(ctx context.Context) (*authsdk.TwoFactorSetup, error)
	ConfirmTwoFactor(ctx context.Context, code string) error
	DisableTwoFactor(ctx context.Context) error
	VerifyTwoFactorLogin(ctx context.Context, tempToken, code string) (*authsdk.User, error)
}

// Sessions is the subset of the SessionStore this controller mutates.
type Sessions interface {
	Authenticated() bool
	SetAuthenticated(ctx context.Context, user domain.UserProfile) error
	UpdateProfile(ctx context.Context, patch domain.ProfilePatch) error
}

type Options struct {
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Controller struct {
	api      API
	sessions Sessions
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	busy       bool
	enrollment *domain.TwoFactorEnrollment
	key        *otp.Key
}

func New(api API, sessions Sessions, opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		api:      api,
		sessions: sessions,
		logger:   slogx.OrDefault(opts.Logger).With("component", "two_factor"),
		now:      opts.Now,
	}
}

func (c *Controller) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return domain.ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Controller) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// BeginEnrollment requests new enrollment material and keeps it open until
// it is confirmed or cancelled. The session is not touched.
func (c *Controller) BeginEnrollment(ctx context.Context) (domain.TwoFactorEnrollment, error) {
	if !c.sessions.Authenticated() {
		return domain.TwoFactorEnrollment{}, domain.ErrNotAuthenticated
	}
	if err := c.acquire(); err != nil {
		return domain.TwoFactorEnrollment{}, err
	}
	defer c.release()

	setup, err := c.api.SetupTwoFactor(ctx)
	if err != nil {
		c.logger.Info("2fa setup failed", "kind", domain.KindOf(err))
		return domain.TwoFactorEnrollment{}, err
	}

	enr := domain.TwoFactorEnrollment{
		SecretQRPayload: setup.QRCodeURL,
		Secret:          setup.Secret,
	}

	var key *otp.Key
	if strings.HasPrefix(setup.QRCodeURL, otpauthScheme) {
		key, err = otp.NewKeyFromURL(setup.QRCodeURL)
		if err != nil {
			return domain.TwoFactorEnrollment{}, fmt.Errorf("%w: %v", authsdk.ErrMalformedResponse, err)
		}
		enr.Secret = key.Secret()
		enr.Issuer = key.Issuer()
		enr.Account = key.AccountName()
	}

	c.mu.Lock()
	c.enrollment = &enr
	c.key = key
	c.mu.Unlock()

	c.logger.Info("2fa enrollment started")
	return enr, nil
}

// Enrollment returns the open enrollment, if any.
func (c *Controller) Enrollment() (domain.TwoFactorEnrollment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enrollment == nil {
		return domain.TwoFactorEnrollment{}, false
	}
	return *c.enrollment, true
}

// QRCode returns PNG bytes for the open enrollment. An otpauth payload is
// rendered at width x height; a PNG data URL is decoded as is.
func (c *Controller) QRCode(width, height int) ([]byte, error) {
	c.mu.Lock()
	enr, key := c.enrollment, c.key
	c.mu.Unlock()

	if enr == nil {
		return nil, fmt.Errorf("%w: no enrollment in progress", domain.ErrInvalidTransition)
	}

	if key != nil {
		img, err := key.Image(width, height)
		if err != nil {
			return nil, fmt.Errorf("failed to render qr code: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode qr code: %w", err)
		}
		return buf.Bytes(), nil
	}

	if data, ok := strings.CutPrefix(enr.SecretQRPayload, pngDataPrefix); ok {
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoQRCode, err)
		}
		return b, nil
	}
	return nil, ErrNoQRCode
}

// CancelEnrollment drops the open enrollment.
func (c *Controller) CancelEnrollment() {
	c.mu.Lock()
	c.enrollment = nil
	c.key = nil
	c.mu.Unlock()
}

// ConfirmEnrollment submits code for the open enrollment. On success the
// stored profile is marked 2FA-enabled; on failure the enrollment stays
// open for another attempt.
func (c *Controller) ConfirmEnrollment(ctx context.Context, code string) error {
	if err := domain.ValidateCode(code); err != nil {
		return err
	}
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	if c.enrollment == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: no enrollment in progress", domain.ErrInvalidTransition)
	}
	c.enrollment.PendingCode = code
	c.mu.Unlock()

	if err := c.api.ConfirmTwoFactor(ctx, code); err != nil {
		c.mu.Lock()
		if c.enrollment != nil {
			c.enrollment.PendingCode = ""
		}
		c.mu.Unlock()
		c.logger.Info("2fa confirmation failed", "kind", domain.KindOf(err))
		return err
	}

	c.CancelEnrollment()
	c.logger.Info("2fa enabled")
	return c.sessions.UpdateProfile(ctx, domain.SetTwoFactor(true))
}

// Disable turns 2FA off and clears the flag on the stored profile.
func (c *Controller) Disable(ctx context.Context) error {
	if !c.sessions.Authenticated() {
		return domain.ErrNotAuthenticated
	}
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	if err := c.api.DisableTwoFactor(ctx); err != nil {
		c.logger.Info("2fa disable failed", "kind", domain.KindOf(err))
		return err
	}

	c.logger.Info("2fa disabled")
	return c.sessions.UpdateProfile(ctx, domain.SetTwoFactor(false))
}

// VerifyDuringLogin completes a login that stopped for a second factor.
// A malformed code is rejected locally and leaves token usable. Otherwise
// token is consumed whatever the outcome, so a failure forces a fresh
// primary login.
func (c *Controller) VerifyDuringLogin(ctx context.Context, code string, token *domain.TemporaryAuthToken) (domain.UserProfile, error) {
	if err := domain.ValidateCode(code); err != nil {
		return domain.UserProfile{}, err
	}
	if err := c.acquire(); err != nil {
		return domain.UserProfile{}, err
	}
	defer c.release()

	raw, err := token.Take(c.now())
	if err != nil {
		c.logger.Info("2fa temporary token unusable")
		return domain.UserProfile{}, err
	}

	user, err := c.api.VerifyTwoFactorLogin(ctx, raw, code)
	if err != nil {
		c.logger.Info("2fa login verification failed", "kind", domain.KindOf(err))
		return domain.UserProfile{}, err
	}

	profile := wire.Profile(*user)
	if err := c.sessions.SetAuthenticated(ctx, profile); err != nil {
		c.logger.Warn("session authenticated but not persisted", "error", err)
	}
	c.logger.Info("2fa login verified", "user_id", profile.ID)
	return profile, nil
}
