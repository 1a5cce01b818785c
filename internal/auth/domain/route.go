package domain

// Route describes a navigable view for access decisions.
type Route struct {
	Path string

	// Public routes are reachable without a session.
	Public bool

	// GuestOnly routes (login, sign-up) make no sense with a session and
	// send authenticated users home.
	GuestOnly bool
}

// Well-known paths.
const (
	PathHome         = "/"
	PathLoginOptions = "/loginoptions"
	PathLogin        = "/login"
	PathSignUp       = "/signup"
	PathProfile      = "/profile"

	// Prefixes; the token follows.
	PathResetPassword = "/reset-password/"
	PathVerifyEmail   = "/verify-email/"
)
