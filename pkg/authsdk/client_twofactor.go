package authsdk

import (
	"context"
	"fmt"
	"net/http"
)

// SetupTwoFactor requests enrollment material for a new TOTP secret.
func (c *Client) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	var setup TwoFactorSetup
	if err := c.Do(ctx, &Request{Method: http.MethodPost, Path: PathTwoFactorSetup}, &setup); err != nil {
		return nil, err
	}
	if setup.QRCodeURL == "" {
		return nil, fmt.Errorf("%w: 2fa setup returned no qr payload", ErrMalformedResponse)
	}
	return &setup, nil
}

// ConfirmTwoFactor verifies a code against the pending secret, enabling 2FA.
func (c *Client) ConfirmTwoFactor(ctx context.Context, code string) error {
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   PathTwoFactorVerify,
		Body:   twoFactorCodeBody{Code: code},
	}, nil)
}

// DisableTwoFactor turns 2FA off for the current account.
func (c *Client) DisableTwoFactor(ctx context.Context) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: PathTwoFactorDisable}, nil)
}
