package authsdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Logout ends the current session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathLogout}, nil)
}

// LogoutAll ends every session of the current account.
func (c *Client) LogoutAll(ctx context.Context) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathLogoutAll}, nil)
}

// Profile fetches the current account.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	return c.userCall(ctx, &Request{Method: http.MethodGet, Path: PathProfile})
}

// UpdateProfile changes the non-nil fields of upd.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	return c.userCall(ctx, &Request{Method: http.MethodPut, Path: PathUpdateProfile, Body: upd})
}

// UpdateProfilePic uploads a new profile picture as multipart field
// "profilePic".
func (c *Client) UpdateProfilePic(ctx context.Context, filename string, r io.Reader) (*User, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("profilePic", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.userCall(ctx, &Request{
		Method:      http.MethodPut,
		Path:        PathUpdateProfilePic,
		Raw:         buf.Bytes(),
		ContentType: mw.FormDataContentType(),
	})
}

// DeleteProfilePic removes the profile picture.
func (c *Client) DeleteProfilePic(ctx context.Context) (*User, error) {
	return c.userCall(ctx, &Request{Method: http.MethodDelete, Path: PathDeleteProfilePic})
}

// DeleteAccount permanently deletes the current account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: PathDeleteAccount}, nil)
}

// ChangePassword replaces the account password.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathChangePassword, Body: req}, nil)
}

// ResendEmailVerification mails a fresh verification link.
func (c *Client) ResendEmailVerification(ctx context.Context) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathResendVerification}, nil)
}

func (c *Client) userCall(ctx context.Context, req *Request) (*User, error) {
	var env userEnvelope
	if err := c.Do(ctx, req, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, fmt.Errorf("%w: %s returned no user", ErrMalformedResponse, req.Path)
	}
	return env.User, nil
}
