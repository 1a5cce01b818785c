package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// SignUp registers a new account. The server mails a verification link;
// no session is established.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	var env messageEnvelope
	err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathSignUp,
		Body:      req,
		NoRefresh: true,
	}, &env)
	return env.Message, err
}

// ForgotPassword mails a password reset link to email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathForgotPassword,
		Body:      emailBody{Email: email},
		NoRefresh: true,
	}, nil)
}

// ValidateResetToken checks a reset token before the new password is asked for.
func (c *Client) ValidateResetToken(ctx context.Context, token string) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodGet,
		Path:      PathValidateResetToken + url.PathEscape(token),
		NoRefresh: true,
	}, nil)
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathResetPassword,
		Body:      req,
		NoRefresh: true,
	}, nil)
}

// VerifyEmail submits an email verification token from a mailed link.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*EmailVerification, error) {
	var env emailVerificationEnvelope
	err := c.Do(ctx, &Request{
		Method:    http.MethodPost,
		Path:      PathVerifyEmail,
		Body:      tokenBody{Token: token},
		NoRefresh: true,
	}, &env)
	if err != nil {
		return nil, err
	}
	return &EmailVerification{Message: env.Message, EmailVerified: env.Data.EmailVerified}, nil
}
