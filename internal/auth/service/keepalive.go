package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
)

// DefaultKeepAliveInterval is used when no interval is given.
const DefaultKeepAliveInterval = 5 * time.Minute

// KeepAliveService periodically re-fetches the profile while a session is
// authenticated. This keeps the stored user fresh and exercises the refresh
// protocol before the user acts, so an expired session is noticed (and
// cleared) in the background.
type KeepAliveService struct {
	Account  *AccountService
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewKeepAliveService creates a keep-alive worker. If interval is 0 or
// negative, defaults to 5 minutes.
func NewKeepAliveService(account *AccountService, logger *slog.Logger, interval time.Duration) *KeepAliveService {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}

	return &KeepAliveService{
		Account:  account,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *KeepAliveService) Start() {
	go s.run()
	s.Logger.Info("keep-alive service started", "interval", s.Interval)
}

// Stop shuts down the worker and blocks until an in-progress refresh has
// finished.
func (s *KeepAliveService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("keep-alive service stopped")
}

func (s *KeepAliveService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stopCh:
			return
		}
	}
}

// refresh fetches the profile once. Failures are logged; an expired session
// has already been cleared by the client by the time it is reported here.
func (s *KeepAliveService) refresh() {
	if !s.Account.Sessions.Authenticated() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	if _, err := s.Account.RefreshProfile(ctx); err != nil {
		s.Logger.Warn("keep-alive profile refresh failed", "kind", domain.KindOf(err), "error", err)
		return
	}
	s.Logger.Debug("keep-alive profile refreshed")
}
