package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// Login submits email and password. For accounts with 2FA enabled the
// result carries a temporary token instead of a user.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return c.login(ctx, PathLogin, credentialsBody{Email: email, Password: password}, "")
}

// LoginPasswordOTP submits the password step of the password-then-OTP
// strategy. On success the server mails a one-time code; no session is
// established yet.
func (c *Client) LoginPasswordOTP(ctx context.Context, email, password string) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathLoginPasswordOTP,
		Body:      credentialsBody{Email: email, Password: password},
		NoRefresh: true,
	}, nil)
}

// SendOTP asks the server to deliver a one-time code to email.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathSendOTP,
		Body:      emailBody{Email: email},
		NoRefresh: true,
	}, nil)
}

// ResendOTP supersedes the outstanding code for email with a new one.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathResendOTP,
		Body:      emailBody{Email: email},
		NoRefresh: true,
	}, nil)
}

// LoginOTP completes an OTP login.
func (c *Client) LoginOTP(ctx context.Context, email, code string) (*User, error) {
	res, err := c.login(ctx, PathLoginOTP, otpBody{Email: email, OTP: code}, "")
	if err != nil {
		return nil, err
	}
	if res.User == nil {
		return nil, fmt.Errorf("%w: login-otp returned no user", ErrMalformedResponse)
	}
	return res.User, nil
}

// VerifyTwoFactorLogin completes a 2FA login. tempToken is the credential
// issued by Login and is sent as a bearer token for this call only.
func (c *Client) VerifyTwoFactorLogin(ctx context.Context, tempToken, code string) (*User, error) {
	res, err := c.login(ctx, PathVerifyTwoFactor, twoFactorLoginBody{Code: code}, tempToken)
	if err != nil {
		return nil, err
	}
	if res.User == nil {
		return nil, fmt.Errorf("%w: verify-2fa returned no user", ErrMalformedResponse)
	}
	return res.User, nil
}

func (c *Client) login(ctx context.Context, path string, body any, bearer string) (*LoginResult, error) {
	var env loginEnvelope
	err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      path,
		Body:      body,
		Bearer:    bearer,
		NoRefresh: true,
	}, &env)
	if err != nil {
		return nil, err
	}

	res := &LoginResult{
		Message:           env.Message,
		User:              env.Data.User,
		TwoFactorRequired: env.Data.TwoFactorRequired,
		TempToken:         env.Data.TempToken,
	}

	if res.TwoFactorRequired && res.TempToken == "" {
		return nil, fmt.Errorf("%w: two-factor required without a temporary token", ErrMalformedResponse)
	}
	if !res.TwoFactorRequired && res.User == nil {
		return nil, fmt.Errorf("%w: login returned no user", ErrMalformedResponse)
	}

	return res, nil
}
