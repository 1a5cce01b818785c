package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aussiebroadwan/authflow/internal/auth/guard"
	"github.com/aussiebroadwan/authflow/internal/auth/login"
	"github.com/aussiebroadwan/authflow/internal/auth/service"
	"github.com/aussiebroadwan/authflow/internal/auth/session"
	"github.com/aussiebroadwan/authflow/internal/auth/store"
	"github.com/aussiebroadwan/authflow/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/authflow/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/authflow/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/authflow/internal/auth/twofactor"
	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/cryptox"
	"github.com/aussiebroadwan/authflow/pkg/httpx"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the auth layer of one client process.
type Application struct {
	cfg    Config
	logger *slog.Logger

	backend store.Store

	Sessions  *session.Store
	Client    *authsdk.Client
	TwoFactor *twofactor.Controller
	Guard     *guard.Guard
	Account   *service.AccountService
	Recovery  *service.RecoveryService

	keepAlive *service.KeepAliveService
	startOnce sync.Once
	started   bool
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "authflow",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	return newApplication(context.Background(), cfg, logger, nil)
}

// newApplication wires the components. transport, when set, replaces the
// default HTTP transport.
func newApplication(ctx context.Context, cfg Config, logger *slog.Logger, transport http.RoundTripper) (*Application, error) {
	app := &Application{cfg: cfg, logger: logger}

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.backend = backend

	app.Sessions = session.NewStore(backend, session.Options{Key: cfg.StorageKey, Logger: logger})

	app.Client = authsdk.New(authsdk.Config{
		BaseURL:         cfg.APIBaseURL,
		Timeout:         cfg.HTTPTimeout,
		Logger:          logger,
		CredentialLimit: httpx.ParseRateLimitFromEnv("CREDENTIALS", httpx.StrictLimit),
		DeliveryLimit:   httpx.ParseRateLimitFromEnv("DELIVERY", httpx.ModerateLimit),
		Transport:       transport,
	})
	app.Client.OnSessionExpired = func(ctx context.Context) {
		logger.Info("session expired, clearing local state")
		if err := app.Sessions.Clear(ctx); err != nil {
			logger.Error("failed to clear expired session", "error", err)
		}
	}

	app.TwoFactor = twofactor.New(app.Client, app.Sessions, twofactor.Options{Logger: logger})
	app.Guard = guard.New(app.Sessions, guard.Options{
		HydrationTimeout: cfg.HydrationTimeout,
		Logger:           logger,
	})

	app.Account = &service.AccountService{API: app.Client, Sessions: app.Sessions, Logger: logger}
	app.Recovery = &service.RecoveryService{API: app.Client, Sessions: app.Sessions, Logger: logger}
	app.keepAlive = service.NewKeepAliveService(app.Account, logger, cfg.KeepAliveInterval)

	return app, nil
}

// openStore opens the configured persistence driver, sealed when a state
// secret is set.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	var backend store.Store

	switch cfg.StoreDriver {
	case DriverMemory:
		backend = memory.NewStore()

	case DriverSQLite:
		db, err := sqlite.NewStore(sqlite.DSN(cfg.SQLitePath))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("database migrations applied successfully", "path", cfg.SQLitePath)
		backend = db

	case DriverRedis:
		rdb, err := redis.Dial(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		backend = rdb

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	if cfg.StateSecret == "" {
		return backend, nil
	}

	sealer, err := cryptox.NewSealer(cfg.StateSecret)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to derive state key: %w", err)
	}
	logger.Info("persisted session is sealed")
	return store.NewSealed(backend, sealer), nil
}

// NewLogin returns a login form bound to this application's session.
func (app *Application) NewLogin(strategy login.Strategy, opts login.Options) *login.Orchestrator {
	opts.Strategy = strategy
	if opts.OTPTTL == 0 {
		opts.OTPTTL = app.cfg.OTPTTL
	}
	if opts.Logger == nil {
		opts.Logger = app.logger
	}
	return login.New(app.Client, app.Sessions, app.TwoFactor, opts)
}

// Start hydrates the session and starts background work. A session that
// cannot be read is treated as signed out.
func (app *Application) Start(ctx context.Context) {
	app.startOnce.Do(func() {
		hctx, cancel := context.WithTimeout(ctx, app.cfg.HydrationTimeout)
		defer cancel()

		if err := app.Sessions.Hydrate(hctx); err != nil {
			app.logger.Warn("session hydration failed", "error", err)
		}

		app.keepAlive.Start()
		app.started = true
	})
}

// Run starts the application, serves the interactive shell on in/out and
// blocks until the shell exits or a shutdown signal arrives.
func (app *Application) Run(in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Start(ctx)
	app.logger.Info("authflow starting", "api", app.cfg.APIBaseURL, "store", app.cfg.StoreDriver, "version", BuildVersion)

	shell := NewREPL(app, in, out)
	done := make(chan error, 1)
	go func() {
		done <- shell.Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	}

	if err := app.Shutdown(); err != nil {
		return errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	return runErr
}

// Shutdown stops background work and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authflow...")

	if app.started {
		app.keepAlive.Stop()
		app.started = false
	}

	if err := app.backend.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("authflow stopped")
	return nil
}
