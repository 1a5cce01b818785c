package login

import "fmt"

// State is a step of the login state machine.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateRequestingCode
	StateAwaitingOTP
	StateVerifyingOTP
	StateAwaitingTwoFactor
	StateVerifyingTwoFactor
	StateAuthenticated
	StateFailed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateSubmitting:         "submitting",
	StateRequestingCode:     "requesting_code",
	StateAwaitingOTP:        "awaiting_otp",
	StateVerifyingOTP:       "verifying_otp",
	StateAwaitingTwoFactor:  "awaiting_two_factor",
	StateVerifyingTwoFactor: "verifying_two_factor",
	StateAuthenticated:      "authenticated",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Editable reports whether credential fields may change in s.
func (s State) Editable() bool {
	return s == StateIdle || s == StateFailed
}

// Strategy selects the login modality.
type Strategy int

const (
	// StrategyPassword is password-only, or password-then-2FA when the
	// account has 2FA enabled. The server decides which applies.
	StrategyPassword Strategy = iota
	// StrategyOTP requests a code by email and verifies it.
	StrategyOTP
	// StrategyPasswordOTP checks the password, then verifies an emailed code.
	StrategyPasswordOTP
)

func (s Strategy) String() string {
	switch s {
	case StrategyPassword:
		return "password"
	case StrategyOTP:
		return "otp"
	case StrategyPasswordOTP:
		return "password_otp"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a name produced by String back to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategyPassword, StrategyOTP, StrategyPasswordOTP} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown login strategy %q", name)
}

// NeedsPassword reports whether the first step submits a password.
func (s Strategy) NeedsPassword() bool {
	return s != StrategyOTP
}
