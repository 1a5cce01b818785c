package domain

import (
	"regexp"
	"strings"
)

// MinPasswordLength applies to login, sign-up and password changes.
const MinPasswordLength = 6

// OTPLength is the number of digits in a one-time code.
const OTPLength = 6

var (
	emailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks a normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required."}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Email is invalid. Please enter a valid email address."}
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password is invalid. It should be at least 6 characters long."}
	}
	return nil
}

// ValidateCode checks a six digit one-time or TOTP code.
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return &ValidationError{Field: "code", Message: "Please enter a valid 6-digit code."}
	}
	return nil
}

// ValidatePasswordChange checks a new password against the current one.
func ValidatePasswordChange(current, next string) error {
	if len(next) < MinPasswordLength {
		return &ValidationError{Field: "newPassword", Message: "New password must be at least 6 characters long."}
	}
	if current == next {
		return &ValidationError{Field: "newPassword", Message: "New password must be different from current password."}
	}
	return nil
}

// ValidatePasswordConfirmation checks that both entries match.
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return &ValidationError{Field: "confirmPassword", Message: "Passwords do not match."}
	}
	return nil
}

// ValidateRequired rejects an empty (or blank) value.
func ValidateRequired(field, label, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: label + " is required."}
	}
	return nil
}
