// Package otpchallenge drives the six-digit one-time-code entry: position
// addressable input, paste, the expiry countdown and resend cooldown.
package otpchallenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/pkg/clockx"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// DefaultTTL is how long a delivered code stays valid.
const DefaultTTL = 300 * time.Second

const tick = time.Second

// Submitter performs the network side of a challenge.
type Submitter interface {
	Verify(ctx context.Context, code string) error
	Resend(ctx context.Context) error
}

// Key is a navigation or editing key pressed on a digit position.
type Key int

const (
	KeyBackspace Key = iota
	KeyDelete
	KeyLeft
	KeyRight
)

// State is a copy of the challenge as a front end renders it.
type State struct {
	TargetEmail     string
	Digits          [domain.OTPLength]string
	Focus           int
	ExpiresAt       time.Time
	Remaining       time.Duration
	ResendAvailable bool
	Verifying       bool
	Resending       bool
	Verified        bool
	Disposed        bool
}

// Code joins the digits.
func (s State) Code() string {
	return strings.Join(s.Digits[:], "")
}

// Complete reports whether every position holds a digit.
func (s State) Complete() bool {
	for _, d := range s.Digits {
		if d == "" {
			return false
		}
	}
	return true
}

func (s State) busy() bool { return s.Verifying || s.Resending }

// CanVerify mirrors the enabled state of a verify button.
func (s State) CanVerify() bool {
	return !s.busy() && !s.Verified && !s.Disposed && s.Remaining > 0 && s.Complete()
}

// CanResend mirrors the enabled state of a resend button.
func (s State) CanResend() bool {
	return !s.busy() && !s.Verified && !s.Disposed && s.ResendAvailable
}

type Options struct {
	TTL       time.Duration
	Scheduler clockx.Scheduler
	Logger    *slog.Logger

	// OnChange receives a copy of the state after every change, including
	// countdown ticks. It runs without the controller lock held.
	OnChange func(State)
}

// Controller is one OTP challenge. It is created when a code has been
// requested and lives until it is verified or disposed.
type Controller struct {
	sub      Submitter
	ttl      time.Duration
	sched    clockx.Scheduler
	logger   *slog.Logger
	onChange func(State)

	mu     sync.Mutex
	state  State
	cancel clockx.Cancel
	// timer identifies the live countdown; ticks from a replaced one are ignored.
	timer uint64
	// epoch invalidates in-flight calls on Dispose.
	epoch uint64
}

// New starts a challenge for email and its countdown.
func New(email string, sub Submitter, opts Options) *Controller {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockx.System{}
	}

	c := &Controller{
		sub:      sub,
		ttl:      opts.TTL,
		sched:    opts.Scheduler,
		logger:   slogx.OrDefault(opts.Logger).With("component", "otp_challenge"),
		onChange: opts.OnChange,
	}
	c.state.TargetEmail = email

	c.mu.Lock()
	c.restartLocked()
	c.mu.Unlock()
	return c
}

// restartLocked resets the countdown and digits. Callers hold c.mu.
func (c *Controller) restartLocked() {
	if c.cancel != nil {
		c.cancel()
	}
	c.state.Digits = [domain.OTPLength]string{}
	c.state.Focus = 0
	c.state.Remaining = c.ttl
	c.state.ExpiresAt = c.sched.Now().Add(c.ttl)
	c.state.ResendAvailable = false

	c.timer++
	timer := c.timer
	c.cancel = c.sched.Every(tick, func() { c.tick(timer) })
}

func (c *Controller) tick(timer uint64) {
	c.mu.Lock()
	if c.timer != timer || c.state.Disposed || c.state.Remaining <= 0 {
		c.mu.Unlock()
		return
	}

	c.state.Remaining -= tick
	if c.state.Remaining <= 0 {
		c.state.Remaining = 0
		c.state.ResendAvailable = true
		c.cancel()
	}
	st := c.state
	c.mu.Unlock()

	c.emit(st)
}

func (c *Controller) emit(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// edit runs fn under the lock and emits the result if fn changed anything.
func (c *Controller) edit(fn func(*State) (bool, error)) error {
	c.mu.Lock()
	if c.state.Disposed {
		c.mu.Unlock()
		return domain.ErrDisposed
	}
	changed, err := fn(&c.state)
	st := c.state
	c.mu.Unlock()

	if changed {
		c.emit(st)
	}
	return err
}

func checkPosition(i int) error {
	if i < 0 || i >= domain.OTPLength {
		return &domain.ValidationError{Field: "position", Message: fmt.Sprintf("position %d out of range", i)}
	}
	return nil
}

// Input sets position i to value, a single digit or "" to clear it.
// Entering a digit moves focus to the next position.
func (c *Controller) Input(i int, value string) error {
	return c.edit(func(s *State) (bool, error) {
		if err := checkPosition(i); err != nil {
			return false, err
		}
		if value != "" && !isDigits(value, 1) {
			return false, &domain.ValidationError{Field: "otp", Message: "Only digits are allowed"}
		}

		s.Digits[i] = value
		s.Focus = i
		if value != "" && i < domain.OTPLength-1 {
			s.Focus = i + 1
		}
		return true, nil
	})
}

// Press handles key at position i. Backspace clears the position and moves
// focus back; Delete clears in place; arrows move focus only.
func (c *Controller) Press(i int, key Key) error {
	return c.edit(func(s *State) (bool, error) {
		if err := checkPosition(i); err != nil {
			return false, err
		}

		switch key {
		case KeyBackspace:
			s.Digits[i] = ""
			s.Focus = max(i-1, 0)
		case KeyDelete:
			s.Digits[i] = ""
			s.Focus = i
		case KeyLeft:
			s.Focus = max(i-1, 0)
		case KeyRight:
			s.Focus = min(i+1, domain.OTPLength-1)
		default:
			return false, fmt.Errorf("%w: unknown key %d", domain.ErrInvalidTransition, key)
		}
		return true, nil
	})
}

// Paste fills every position from text at once. Anything other than
// exactly six digits is rejected and the state is left untouched.
func (c *Controller) Paste(text string) error {
	return c.edit(func(s *State) (bool, error) {
		if !isDigits(text, domain.OTPLength) {
			return false, &domain.ValidationError{Field: "otp", Message: "Paste a 6-digit code"}
		}
		for i, r := range text {
			s.Digits[i] = string(r)
		}
		s.Focus = domain.OTPLength - 1
		return true, nil
	})
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Verify submits the assembled code. A failed attempt clears the digits
// so the user can type the code again while the countdown continues.
func (c *Controller) Verify(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state.Disposed:
		c.mu.Unlock()
		return domain.ErrDisposed
	case c.state.Verified:
		c.mu.Unlock()
		return fmt.Errorf("%w: challenge already verified", domain.ErrInvalidTransition)
	case c.state.busy():
		c.mu.Unlock()
		return domain.ErrBusy
	case c.state.Remaining <= 0:
		c.mu.Unlock()
		return domain.ErrChallengeExpired
	}

	code := c.state.Code()
	if err := domain.ValidateCode(code); err != nil {
		c.mu.Unlock()
		return err
	}

	c.state.Verifying = true
	epoch := c.epoch
	st := c.state
	c.mu.Unlock()
	c.emit(st)

	err := c.sub.Verify(ctx, code)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding verify result after dispose")
		return domain.ErrDisposed
	}
	c.state.Verifying = false
	if err != nil {
		c.state.Digits = [domain.OTPLength]string{}
		c.state.Focus = 0
	} else {
		c.state.Verified = true
		c.cancel()
	}
	st = c.state
	c.mu.Unlock()
	c.emit(st)

	if err != nil {
		c.logger.Info("otp verification failed", "kind", domain.KindOf(err))
		return err
	}
	c.logger.Info("otp verified")
	return nil
}

// Resend asks for a new code. It is only available once the countdown
// has reached zero; success restarts the countdown and clears the digits.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state.Disposed:
		c.mu.Unlock()
		return domain.ErrDisposed
	case c.state.Verified:
		c.mu.Unlock()
		return fmt.Errorf("%w: challenge already verified", domain.ErrInvalidTransition)
	case c.state.busy():
		c.mu.Unlock()
		return domain.ErrBusy
	case !c.state.ResendAvailable:
		c.mu.Unlock()
		return fmt.Errorf("%w: resend not available yet", domain.ErrInvalidTransition)
	}

	c.state.Resending = true
	epoch := c.epoch
	st := c.state
	c.mu.Unlock()
	c.emit(st)

	err := c.sub.Resend(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding resend result after dispose")
		return domain.ErrDisposed
	}
	c.state.Resending = false
	if err == nil {
		c.restartLocked()
	}
	st = c.state
	c.mu.Unlock()
	c.emit(st)

	if err != nil {
		c.logger.Info("otp resend failed", "kind", domain.KindOf(err))
		return err
	}
	c.logger.Info("otp resent")
	return nil
}

// Dispose stops the countdown. Results of calls still in flight are
// discarded. Dispose is idempotent.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.state.Disposed {
		c.mu.Unlock()
		return
	}
	c.state.Disposed = true
	c.state.Verifying = false
	c.state.Resending = false
	c.epoch++
	c.cancel()
	st := c.state
	c.mu.Unlock()

	c.emit(st)
}
