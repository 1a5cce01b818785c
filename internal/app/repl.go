package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/login"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// qrSize is the edge length of the enrollment QR image in pixels.
const qrSize = 256

type command struct {
	usage string
	run   func(ctx context.Context, args []string) error
}

// REPL is the interactive terminal front end. It drives every auth flow
// through the Application's components and renders their state as text.
type REPL struct {
	app *Application
	in  *bufio.Reader
	out io.Writer

	// secretFD reads secrets without echo; -1 reads them as plain lines.
	secretFD int

	commands map[string]command
}

func NewREPL(app *Application, in io.Reader, out io.Writer) *REPL {
	r := &REPL{
		app:      app,
		in:       bufio.NewReader(in),
		out:      out,
		secretFD: -1,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.secretFD = int(f.Fd())
	}

	r.commands = map[string]command{
		"status":              {"show the signed-in user", r.status},
		"open":                {"open <path>: check a route", r.open},
		"login":               {"login [password|otp|password_otp]", r.login},
		"signup":              {"create an account", r.signUp},
		"forgot-password":     {"mail a password reset link", r.forgotPassword},
		"reset-password":      {"reset-password <token>", r.resetPassword},
		"verify-email":        {"verify-email <token>", r.verifyEmail},
		"profile":             {"fetch the profile from the server", r.profile},
		"update-profile":      {"edit name, username, email or phone", r.updateProfile},
		"upload-pic":          {"upload-pic <file>", r.uploadPic},
		"delete-pic":          {"remove the profile picture", r.deletePic},
		"change-password":     {"change the password", r.changePassword},
		"resend-verification": {"mail a new verification link", r.resendVerification},
		"2fa-setup":           {"2fa-setup [qr.png]: enable two-factor authentication", r.setupTwoFactor},
		"2fa-disable":         {"disable two-factor authentication", r.disableTwoFactor},
		"logout":              {"end this session", r.logout},
		"logout-all":          {"end every session", r.logoutAll},
		"delete-account":      {"delete the account", r.deleteAccount},
	}
	return r
}

// Run reads commands until EOF, "exit" or "quit", or until ctx is done.
// Command failures are printed, never returned.
func (r *REPL) Run(ctx context.Context) error {
	r.println("authflow " + BuildVersion + ", type 'help' for commands")

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := r.prompt(r.statusLine())
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch name := parts[0]; name {
		case "help":
			r.help()
		case "exit", "quit":
			r.println("Bye!")
			return nil
		default:
			cmd, ok := r.commands[name]
			if !ok {
				r.println("Unknown command: " + name)
				continue
			}
			if err := cmd.run(ctx, parts[1:]); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				r.printErr(err)
			}
		}
	}
}

func (r *REPL) statusLine() string {
	if u, ok := r.app.Sessions.User(); ok {
		return "authflow (" + u.Email + ")"
	}
	return "authflow"
}

func (r *REPL) help() {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r.printf("  %-20s %s\n", name, r.commands[name].usage)
	}
	r.printf("  %-20s %s\n", "exit", "leave the program")
}

func (r *REPL) println(s string) { fmt.Fprintln(r.out, s) }

func (r *REPL) printf(format string, args ...any) { fmt.Fprintf(r.out, format, args...) }

func (r *REPL) printErr(err error) {
	r.printf("error: %s\n", domain.Message(err))
}

// prompt prints label and reads one trimmed line. A final line without a
// newline is returned as is.
func (r *REPL) prompt(label string) (string, error) {
	r.printf("%s> ", label)
	line, err := r.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret reads a value without echo when attached to a terminal.
func (r *REPL) secret(label string) (string, error) {
	if r.secretFD < 0 {
		return r.prompt(label)
	}

	r.printf("%s: ", label)
	b, err := readPassword(r.secretFD)
	fmt.Fprintln(r.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func needArg(args []string, usage string) (string, error) {
	if len(args) == 0 {
		return "", &domain.ValidationError{Field: "args", Message: "Usage: " + usage}
	}
	return args[0], nil
}

func (r *REPL) status(ctx context.Context, _ []string) error {
	u, ok := r.app.Sessions.User()
	if !ok {
		r.println("Not signed in.")
		return nil
	}

	r.printf("Signed in as %s <%s>\n", u.Name, u.Email)
	r.printf("  username:       %s\n", u.Username)
	r.printf("  email verified: %t\n", u.EmailVerified)
	r.printf("  two-factor:     %t\n", u.TwoFactorEnabled)
	return nil
}

func (r *REPL) open(ctx context.Context, args []string) error {
	path, err := needArg(args, "open <path>")
	if err != nil {
		return err
	}

	d := r.app.Guard.CheckPath(ctx, path)
	switch {
	case d.NotFound:
		r.println("404: " + path + " not found")
	case d.Allow:
		r.println("200: " + path)
	default:
		r.println("302: redirect to " + d.Redirect)
	}
	return nil
}

func (r *REPL) login(ctx context.Context, args []string) error {
	strategy := login.StrategyPassword
	if len(args) > 0 {
		s, err := login.ParseStrategy(args[0])
		if err != nil {
			return &domain.ValidationError{Field: "strategy", Message: err.Error()}
		}
		strategy = s
	}
	if r.app.Sessions.Authenticated() {
		r.println("Already signed in.")
		return nil
	}

	o := r.app.NewLogin(strategy, login.Options{})
	defer o.Dispose()

	email, err := r.prompt("Email")
	if err != nil {
		return err
	}
	if err := o.SetEmail(email); err != nil {
		return err
	}
	if strategy.NeedsPassword() {
		password, err := r.secret("Password")
		if err != nil {
			return err
		}
		if err := o.SetPassword(password); err != nil {
			return err
		}
	}

	if err := o.Submit(ctx); err != nil {
		return err
	}

	for {
		switch o.State() {
		case login.StateAuthenticated:
			u, _ := r.app.Sessions.User()
			r.printf("Welcome, %s.\n", u.Name)
			return nil

		case login.StateAwaitingOTP:
			st := o.Challenge().State()
			label := fmt.Sprintf("Code sent to %s, %s left ('resend' for a new one)", st.TargetEmail, st.Remaining.Round(time.Second))
			code, err := r.prompt(label)
			if err != nil {
				return err
			}
			if code == "resend" {
				err = o.ResendOTP(ctx)
			} else {
				err = o.VerifyOTP(ctx, code)
			}
			if err != nil {
				r.printErr(err)
			}

		case login.StateAwaitingTwoFactor:
			code, err := r.prompt("Authenticator code")
			if err != nil {
				return err
			}
			if err := o.VerifyTwoFactor(ctx, code); err != nil && o.State() == login.StateAwaitingTwoFactor {
				r.printErr(err)
			}

		default:
			if err := o.Snapshot().Err; err != nil {
				return err
			}
			return fmt.Errorf("login stopped in state %s", o.State())
		}
	}
}

func (r *REPL) signUp(ctx context.Context, _ []string) error {
	var req authsdk.SignUpRequest
	fields := []struct {
		label  string
		dst    *string
		secret bool
	}{
		{"Name", &req.Name, false},
		{"Username", &req.Username, false},
		{"Email", &req.Email, false},
		{"Phone", &req.Phone, false},
		{"Password", &req.Password, true},
		{"Confirm password", &req.ConfirmPassword, true},
	}
	for _, f := range fields {
		read := r.prompt
		if f.secret {
			read = r.secret
		}
		v, err := read(f.label)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	msg, err := r.app.Recovery.SignUp(ctx, req)
	if err != nil {
		return err
	}
	r.println(msg)
	return nil
}

func (r *REPL) forgotPassword(ctx context.Context, _ []string) error {
	email, err := r.prompt("Email")
	if err != nil {
		return err
	}
	if err := r.app.Recovery.ForgotPassword(ctx, email); err != nil {
		return err
	}
	r.println("If the account exists, a reset link is on its way.")
	return nil
}

func (r *REPL) resetPassword(ctx context.Context, args []string) error {
	token, err := needArg(args, "reset-password <token>")
	if err != nil {
		return err
	}
	password, err := r.secret("New password")
	if err != nil {
		return err
	}
	confirm, err := r.secret("Confirm password")
	if err != nil {
		return err
	}

	if err := r.app.Recovery.ResetPassword(ctx, token, password, confirm); err != nil {
		return err
	}
	r.println("Password reset. You can log in now.")
	return nil
}

func (r *REPL) verifyEmail(ctx context.Context, args []string) error {
	token, err := needArg(args, "verify-email <token>")
	if err != nil {
		return err
	}

	res, err := r.app.Recovery.VerifyEmail(ctx, token)
	if err != nil {
		return err
	}
	r.println(res.Message)
	return nil
}

func (r *REPL) profile(ctx context.Context, _ []string) error {
	if _, err := r.app.Account.RefreshProfile(ctx); err != nil {
		return err
	}
	return r.status(ctx, nil)
}

func (r *REPL) updateProfile(ctx context.Context, _ []string) error {
	var upd authsdk.ProfileUpdate
	fields := []struct {
		label string
		dst   **string
	}{
		{"Name", &upd.Name},
		{"Username", &upd.Username},
		{"Email", &upd.Email},
		{"Phone", &upd.Phone},
	}

	r.println("Leave a field empty to keep it.")
	for _, f := range fields {
		v, err := r.prompt(f.label)
		if err != nil {
			return err
		}
		if v != "" {
			*f.dst = &v
		}
	}

	if _, err := r.app.Account.UpdateProfile(ctx, upd); err != nil {
		return err
	}
	return r.status(ctx, nil)
}

func (r *REPL) uploadPic(ctx context.Context, args []string) error {
	path, err := needArg(args, "upload-pic <file>")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	profile, err := r.app.Account.UploadProfilePic(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	r.println("Profile picture: " + profile.AvatarURL)
	return nil
}

func (r *REPL) deletePic(ctx context.Context, _ []string) error {
	if _, err := r.app.Account.DeleteProfilePic(ctx); err != nil {
		return err
	}
	r.println("Profile picture removed.")
	return nil
}

func (r *REPL) changePassword(ctx context.Context, _ []string) error {
	current, err := r.secret("Current password")
	if err != nil {
		return err
	}
	next, err := r.secret("New password")
	if err != nil {
		return err
	}

	if err := r.app.Account.ChangePassword(ctx, current, next); err != nil {
		return err
	}
	r.println("Password changed.")
	return nil
}

func (r *REPL) resendVerification(ctx context.Context, _ []string) error {
	if err := r.app.Account.ResendEmailVerification(ctx); err != nil {
		return err
	}
	r.println("Verification email sent.")
	return nil
}

func (r *REPL) setupTwoFactor(ctx context.Context, args []string) error {
	tf := r.app.TwoFactor

	enrollment, err := tf.BeginEnrollment(ctx)
	if err != nil {
		return err
	}

	if enrollment.Secret != "" {
		r.printf("Add this account to your authenticator app:\n  account: %s\n  issuer:  %s\n  secret:  %s\n",
			enrollment.Account, enrollment.Issuer, enrollment.Secret)
	}
	if len(args) > 0 {
		png, err := tf.QRCode(qrSize, qrSize)
		if err != nil {
			tf.CancelEnrollment()
			return err
		}
		if err := os.WriteFile(args[0], png, 0o600); err != nil {
			tf.CancelEnrollment()
			return err
		}
		r.println("QR code written to " + args[0])
	}

	for {
		code, err := r.prompt("Authenticator code (empty to cancel)")
		if err != nil {
			tf.CancelEnrollment()
			return err
		}
		if code == "" {
			tf.CancelEnrollment()
			r.println("Two-factor setup cancelled.")
			return nil
		}

		if err := tf.ConfirmEnrollment(ctx, code); err != nil {
			r.printErr(err)
			if domain.KindOf(err) == domain.KindSessionExpired {
				return nil
			}
			continue
		}
		r.println("Two-factor authentication enabled.")
		return nil
	}
}

func (r *REPL) disableTwoFactor(ctx context.Context, _ []string) error {
	if err := r.app.TwoFactor.Disable(ctx); err != nil {
		return err
	}
	r.println("Two-factor authentication disabled.")
	return nil
}

func (r *REPL) logout(ctx context.Context, _ []string) error {
	err := r.app.Account.Logout(ctx)
	r.println("Signed out.")
	return err
}

func (r *REPL) logoutAll(ctx context.Context, _ []string) error {
	err := r.app.Account.LogoutAll(ctx)
	r.println("Signed out everywhere.")
	return err
}

func (r *REPL) deleteAccount(ctx context.Context, _ []string) error {
	answer, err := r.prompt("Type 'delete' to confirm")
	if err != nil {
		return err
	}
	if answer != "delete" {
		r.println("Cancelled.")
		return nil
	}

	if err := r.app.Account.DeleteAccount(ctx); err != nil {
		return err
	}
	r.println("Account deleted.")
	return nil
}
