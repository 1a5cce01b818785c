package authsdk

// API paths, relative to the base URL.
const (
	PathLogin              = "/auth/login"
	PathSendOTP            = "/auth/send-otp"
	PathLoginOTP           = "/auth/login-otp"
	PathResendOTP          = "/auth/resend-otp"
	PathLoginPasswordOTP   = "/auth/loginUsingpasswordandotp"
	PathVerifyTwoFactor    = "/auth/verify-2fa"
	PathTwoFactorSetup     = "/auth/2fa/setup"
	PathTwoFactorVerify    = "/auth/2fa/verify"
	PathTwoFactorDisable   = "/auth/2fa/disable"
	PathRefreshToken       = "/auth/refresh-token"
	PathLogout             = "/auth/logout"
	PathLogoutAll          = "/auth/logout-all"
	PathProfile            = "/auth/profile"
	PathUpdateProfile      = "/auth/update-profile"
	PathUpdateProfilePic   = "/auth/update-profile-pic"
	PathDeleteProfilePic   = "/auth/delete-profile-pic"
	PathDeleteAccount      = "/auth/delete-account"
	PathChangePassword     = "/auth/change-password"
	PathSignUp             = "/auth/signup"
	PathForgotPassword     = "/auth/forgot-password"
	PathValidateResetToken = "/auth/validate-reset-token/"
	PathResetPassword      = "/auth/reset-password"
	PathVerifyEmail        = "/auth/verify-email"
	PathResendVerification = "/auth/resend-email-verification"
)

// CredentialPaths submit secrets and are throttled with the strict profile.
var CredentialPaths = []string{
	PathLogin,
	PathLoginOTP,
	PathLoginPasswordOTP,
	PathVerifyTwoFactor,
	PathResetPassword,
}

// DeliveryPaths cause the server to send mail or SMS.
var DeliveryPaths = []string{
	PathSendOTP,
	PathResendOTP,
	PathForgotPassword,
	PathResendVerification,
}

// User is the account representation returned by the API.
type User struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	EmailVerified    bool   `json:"emailVerified"`
	TwoFactorEnabled bool   `json:"is2FAEnabled"`
	ProfilePic       string `json:"profilePic"`
}

// LoginResult is the outcome of a primary login call. Either User is set,
// or TwoFactorRequired is true and TempToken scopes the second factor.
type LoginResult struct {
	Message           string
	User              *User
	TwoFactorRequired bool
	TempToken         string
}

// TwoFactorSetup is the enrollment material for a new TOTP secret.
// QRCodeURL is either an otpauth:// URL or a rendered data URL.
type TwoFactorSetup struct {
	QRCodeURL string `json:"qrCodeUrl"`
	Secret    string `json:"secret,omitempty"`
}

// EmailVerification is the result of submitting an email verification token.
type EmailVerification struct {
	Message       string
	EmailVerified bool
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

type SignUpRequest struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Email           string `json:"email"`
	ConfirmPassword string `json:"confirmPassword"`
	Phone           string `json:"phone"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type ResetPasswordRequest struct {
	ResetToken      string `json:"resetToken"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Wire envelopes.

type messageEnvelope struct {
	Message string `json:"message"`
}

type userEnvelope struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

type loginEnvelope struct {
	Message string `json:"message"`
	Data    struct {
		User              *User  `json:"user"`
		TwoFactorRequired bool   `json:"twoFactorRequired"`
		TempToken         string `json:"tempToken"`
	} `json:"data"`
}

type emailVerificationEnvelope struct {
	Message string `json:"message"`
	Data    struct {
		EmailVerified bool `json:"emailVerified"`
	} `json:"data"`
}

type emailBody struct {
	Email string `json:"email"`
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpBody struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type twoFactorLoginBody struct {
	Code string `json:"twoFACode"`
}

type twoFactorCodeBody struct {
	Code string `json:"code"`
}

type tokenBody struct {
	Token string `json:"token"`
}
