// Package login drives the selected login strategy from credential entry to
// an authenticated session, one step at a time.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/otpchallenge"
	"github.com/aussiebroadwan/authflow/internal/auth/wire"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/clockx"
	"github.com/aussiebroadwan/authflow/pkg/idx"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// ErrCancelled is returned by a step whose attempt was cancelled while the
// request was in flight. Its result has been discarded.
var ErrCancelled = errors.New("login attempt cancelled")

// API is the subset of the HTTP client used for primary login steps.
type API interface {
	Login(ctx context.Context, email, password string) (*authsdk.LoginResult, error)
	LoginPasswordOTP(ctx context.Context, email, password string) error
	SendOTP(ctx context.Context, email string) error
	ResendOTP(ctx context.Context, email string) error
	LoginOTP(ctx context.Context, email, code string) (*authsdk.User, error)
}

// TwoFactorVerifier completes a login that stopped for a second factor and
// authenticates the session on success.
type TwoFactorVerifier interface {
	VerifyDuringLogin(ctx context.Context, code string, token *domain.TemporaryAuthToken) (domain.UserProfile, error)
}

type Sessions interface {
	SetAuthenticated(ctx context.Context, user domain.UserProfile) error
}

// Snapshot is a copy of the orchestrator state for rendering.
type Snapshot struct {
	State     State
	Strategy  Strategy
	Email     string
	Err       error
	AttemptID string
}

type Options struct {
	Strategy  Strategy
	OTPTTL    time.Duration
	Scheduler clockx.Scheduler
	Logger    *slog.Logger

	// OnChange and OnChallengeChange run without any lock held.
	OnChange          func(Snapshot)
	OnChallengeChange func(otpchallenge.State)
}

// Orchestrator is one login form. Steps run strictly one at a time; a step
// submitted while another is in flight fails with domain.ErrBusy.
type Orchestrator struct {
	api       API
	sessions  Sessions
	twoFactor TwoFactorVerifier
	opts      Options
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	strategy  Strategy
	creds     domain.Credentials
	err       error
	token     *domain.TemporaryAuthToken
	challenge *otpchallenge.Controller
	busy      bool
	disposed  bool
	attempt   idx.ID
	// epoch invalidates in-flight steps on Cancel and Dispose.
	epoch uint64
}

func New(api API, sessions Sessions, twoFactor TwoFactorVerifier, opts Options) *Orchestrator {
	if opts.Scheduler == nil {
		opts.Scheduler = clockx.System{}
	}
	return &Orchestrator{
		api:       api,
		sessions:  sessions,
		twoFactor: twoFactor,
		opts:      opts,
		logger:    slogx.OrDefault(opts.Logger).With("component", "login"),
		strategy:  opts.Strategy,
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    o.state,
		Strategy: o.strategy,
		Email:    o.creds.Email,
		Err:      o.err,
	}
	if !o.attempt.IsZero() {
		s.AttemptID = o.attempt.String()
	}
	return s
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) emit(s Snapshot) {
	if o.opts.OnChange != nil {
		o.opts.OnChange(s)
	}
}

// Challenge returns the OTP challenge while a code is awaited, else nil.
func (o *Orchestrator) Challenge() *otpchallenge.Controller {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateAwaitingOTP && o.state != StateVerifyingOTP {
		return nil
	}
	return o.challenge
}

// edit changes a credential field. Editing after a failure returns the
// form to Idle with the other values kept.
func (o *Orchestrator) edit(fn func()) error {
	o.mu.Lock()
	switch {
	case o.disposed:
		o.mu.Unlock()
		return domain.ErrDisposed
	case !o.state.Editable():
		o.mu.Unlock()
		return fmt.Errorf("%w: fields are locked in state %s", domain.ErrInvalidTransition, o.state)
	}
	fn()
	o.state = StateIdle
	s := o.snapshotLocked()
	o.mu.Unlock()

	o.emit(s)
	return nil
}

func (o *Orchestrator) SetEmail(email string) error {
	return o.edit(func() { o.creds.Email = email })
}

func (o *Orchestrator) SetPassword(password string) error {
	return o.edit(func() { o.creds.Password = password })
}

// SetStrategy switches modality. It is only allowed before submission.
func (o *Orchestrator) SetStrategy(s Strategy) error {
	return o.edit(func() { o.strategy = s })
}

// Reset returns a failed form to Idle, keeping the field values.
func (o *Orchestrator) Reset() error {
	return o.edit(func() { o.err = nil })
}

// Submit validates the credentials and runs the first step of the strategy.
// Validation failures never reach the server.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.disposed:
		o.mu.Unlock()
		return domain.ErrDisposed
	case o.busy:
		o.mu.Unlock()
		return domain.ErrBusy
	case !o.state.Editable():
		o.mu.Unlock()
		return fmt.Errorf("%w: cannot submit in state %s", domain.ErrInvalidTransition, o.state)
	}

	o.creds.Email = domain.NormalizeEmail(o.creds.Email)
	if err := o.validateLocked(); err != nil {
		o.state = StateFailed
		o.err = err
		s := o.snapshotLocked()
		o.mu.Unlock()
		o.emit(s)
		return err
	}

	strategy := o.strategy
	creds := o.creds
	o.attempt = idx.New()
	o.err = nil
	o.busy = true
	o.state = StateSubmitting
	if strategy == StrategyOTP {
		o.state = StateRequestingCode
	}
	epoch := o.epoch
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(s)

	ctx = slogx.WithAttempt(slogx.WithContext(ctx, o.logger), s.AttemptID)
	logger := slogx.FromContext(ctx).With("strategy", strategy.String())
	logger.Info("login step submitted", "state", s.State.String())

	var (
		next  State
		user  *authsdk.User
		token *domain.TemporaryAuthToken
		err   error
	)
	switch strategy {
	case StrategyPassword:
		var res *authsdk.LoginResult
		res, err = o.api.Login(ctx, creds.Email, creds.Password)
		if err == nil {
			if res.TwoFactorRequired {
				next, token = StateAwaitingTwoFactor, wire.TemporaryToken(res.TempToken)
			} else {
				next, user = StateAuthenticated, res.User
			}
		}
	case StrategyPasswordOTP:
		err = o.api.LoginPasswordOTP(ctx, creds.Email, creds.Password)
		next = StateAwaitingOTP
	case StrategyOTP:
		err = o.api.SendOTP(ctx, creds.Email)
		next = StateAwaitingOTP
	default:
		err = fmt.Errorf("%w: unknown strategy %s", domain.ErrInvalidTransition, strategy)
	}

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		logger.Info("discarding login result after cancel")
		return ErrCancelled
	}
	o.busy = false

	if err != nil {
		o.state = StateFailed
		o.err = err
		s = o.snapshotLocked()
		o.mu.Unlock()
		o.emit(s)
		logger.Info("login step failed", "kind", domain.KindOf(err))
		return err
	}

	// The first factor is done; the password is never needed again.
	o.creds.ClearPassword()
	o.state = next

	switch next {
	case StateAwaitingTwoFactor:
		o.token = token
	case StateAwaitingOTP:
		o.challenge = otpchallenge.New(creds.Email, otpSubmitter{o}, otpchallenge.Options{
			TTL:       o.opts.OTPTTL,
			Scheduler: o.opts.Scheduler,
			Logger:    logger,
			OnChange:  o.opts.OnChallengeChange,
		})
	}
	s = o.snapshotLocked()
	o.mu.Unlock()

	if next == StateAuthenticated {
		o.authenticate(ctx, logger, wire.Profile(*user))
	}
	o.emit(s)
	logger.Info("login step completed", "state", next.String())
	return nil
}

func (o *Orchestrator) validateLocked() error {
	if err := domain.ValidateEmail(o.creds.Email); err != nil {
		return err
	}
	if o.strategy.NeedsPassword() {
		return domain.ValidatePassword(o.creds.Password)
	}
	return nil
}

// authenticate stores the user. A persistence failure leaves the in-memory
// session authenticated, so it is only logged.
func (o *Orchestrator) authenticate(ctx context.Context, logger *slog.Logger, user domain.UserProfile) {
	if err := o.sessions.SetAuthenticated(ctx, user); err != nil {
		logger.Warn("session authenticated but not persisted", "error", err)
	}
}

// VerifyOTP fills the challenge with code and verifies it.
func (o *Orchestrator) VerifyOTP(ctx context.Context, code string) error {
	ch := o.Challenge()
	if ch == nil {
		return fmt.Errorf("%w: no code is awaited", domain.ErrInvalidTransition)
	}
	if err := ch.Paste(code); err != nil {
		return err
	}
	return ch.Verify(ctx)
}

// ResendOTP asks for a new code once the challenge allows it.
func (o *Orchestrator) ResendOTP(ctx context.Context) error {
	ch := o.Challenge()
	if ch == nil {
		return fmt.Errorf("%w: no code is awaited", domain.ErrInvalidTransition)
	}
	return ch.Resend(ctx)
}

// otpSubmitter is the network side of the challenge owned by o.
type otpSubmitter struct{ o *Orchestrator }

func (s otpSubmitter) Verify(ctx context.Context, code string) error { return s.o.verifyOTP(ctx, code) }
func (s otpSubmitter) Resend(ctx context.Context) error              { return s.o.resendOTP(ctx) }

// beginLocked checks that a step may start from want. Callers hold o.mu.
func (o *Orchestrator) beginLocked(want State) error {
	switch {
	case o.disposed:
		return domain.ErrDisposed
	case o.busy:
		return domain.ErrBusy
	case o.state != want:
		return fmt.Errorf("%w: expected %s, in %s", domain.ErrInvalidTransition, want, o.state)
	}
	return nil
}

func (o *Orchestrator) stepContext(ctx context.Context) (context.Context, *slog.Logger) {
	ctx = slogx.WithAttempt(slogx.WithContext(ctx, o.logger), o.attempt.String())
	return ctx, slogx.FromContext(ctx).With("strategy", o.strategy.String())
}

// verifyOTP submits a code. Any failure returns to AwaitingOTP so the user
// can retype or resend; only success authenticates.
func (o *Orchestrator) verifyOTP(ctx context.Context, code string) error {
	o.mu.Lock()
	if err := o.beginLocked(StateAwaitingOTP); err != nil {
		o.mu.Unlock()
		return err
	}
	o.busy = true
	o.state = StateVerifyingOTP
	o.err = nil
	email := o.creds.Email
	epoch := o.epoch
	ctx, logger := o.stepContext(ctx)
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(s)

	user, err := o.api.LoginOTP(ctx, email, code)

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		logger.Info("discarding otp result after cancel")
		return ErrCancelled
	}
	o.busy = false

	if err != nil {
		o.state = StateAwaitingOTP
		o.err = err
		s = o.snapshotLocked()
		o.mu.Unlock()
		o.emit(s)
		logger.Info("otp verification failed", "kind", domain.KindOf(err))
		return err
	}

	o.state = StateAuthenticated
	s = o.snapshotLocked()
	o.mu.Unlock()

	o.authenticate(ctx, logger, wire.Profile(*user))
	o.emit(s)
	logger.Info("login step completed", "state", StateAuthenticated.String())
	return nil
}

func (o *Orchestrator) resendOTP(ctx context.Context) error {
	o.mu.Lock()
	if err := o.beginLocked(StateAwaitingOTP); err != nil {
		o.mu.Unlock()
		return err
	}
	o.busy = true
	email := o.creds.Email
	epoch := o.epoch
	ctx, logger := o.stepContext(ctx)
	o.mu.Unlock()

	err := o.api.ResendOTP(ctx, email)

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		return ErrCancelled
	}
	o.busy = false
	o.err = err
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(s)

	if err != nil {
		logger.Info("otp resend failed", "kind", domain.KindOf(err))
	}
	return err
}

// VerifyTwoFactor submits the second factor. A malformed code is rejected
// locally and the form keeps waiting. Any other failure spends the
// temporary token and fails the attempt, forcing a fresh primary login.
func (o *Orchestrator) VerifyTwoFactor(ctx context.Context, code string) error {
	o.mu.Lock()
	if err := o.beginLocked(StateAwaitingTwoFactor); err != nil {
		o.mu.Unlock()
		return err
	}
	o.busy = true
	o.state = StateVerifyingTwoFactor
	o.err = nil
	token := o.token
	epoch := o.epoch
	ctx, logger := o.stepContext(ctx)
	s := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(s)

	_, err := o.twoFactor.VerifyDuringLogin(ctx, code, token)

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		logger.Info("discarding 2fa result after cancel")
		return ErrCancelled
	}
	o.busy = false

	switch {
	case err == nil:
		o.token = nil
		o.state = StateAuthenticated
	case domain.KindOf(err) == domain.KindValidation:
		o.state = StateAwaitingTwoFactor
		o.err = err
	default:
		token.Discard()
		o.token = nil
		o.state = StateFailed
		o.err = err
	}
	s = o.snapshotLocked()
	o.mu.Unlock()
	o.emit(s)

	if err != nil {
		logger.Info("2fa verification failed", "kind", domain.KindOf(err))
		return err
	}
	logger.Info("login step completed", "state", StateAuthenticated.String())
	return nil
}

// Cancel abandons the attempt: the challenge timer stops, the temporary
// token and password are dropped and any in-flight result is discarded.
// The email is kept. Cancelling an authenticated form does nothing.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.disposed || o.state == StateAuthenticated {
		o.mu.Unlock()
		return
	}
	ch := o.resetLocked()
	s := o.snapshotLocked()
	o.mu.Unlock()

	if ch != nil {
		ch.Dispose()
	}
	o.emit(s)
}

// resetLocked drops per-attempt material and returns the challenge for the
// caller to dispose outside the lock.
func (o *Orchestrator) resetLocked() *otpchallenge.Controller {
	o.epoch++
	o.busy = false
	if o.token != nil {
		o.token.Discard()
		o.token = nil
	}
	o.creds.ClearPassword()
	o.err = nil
	o.state = StateIdle

	ch := o.challenge
	o.challenge = nil
	return ch
}

// Dispose tears the form down. Every later call fails with
// domain.ErrDisposed.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	authenticated := o.state == StateAuthenticated
	ch := o.resetLocked()
	if authenticated {
		o.state = StateAuthenticated
	}
	o.disposed = true
	o.mu.Unlock()

	if ch != nil {
		ch.Dispose()
	}
}
