// Package guard decides whether a view may be shown for the current session.
package guard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// DefaultHydrationTimeout bounds the wait for the first decision.
const DefaultHydrationTimeout = 3 * time.Second

// Sessions is the read side of the SessionStore.
type Sessions interface {
	Authenticated() bool
	Hydrated() <-chan struct{}
}

// Decision is the outcome for one route.
type Decision struct {
	Allow bool
	// Redirect is set when the route is refused.
	Redirect string
	// NotFound is set for paths outside the route table.
	NotFound bool
}

// DefaultRoutes is the application's route table. Paths ending in "/"
// match everything below them.
func DefaultRoutes() []domain.Route {
	return []domain.Route{
		{Path: domain.PathHome, Public: true},
		{Path: domain.PathLogin, Public: true, GuestOnly: true},
		{Path: domain.PathLoginOptions, Public: true, GuestOnly: true},
		{Path: domain.PathSignUp, Public: true, GuestOnly: true},
		{Path: domain.PathResetPassword, Public: true},
		{Path: domain.PathVerifyEmail, Public: true},
		{Path: domain.PathProfile},
	}
}

type Options struct {
	Routes           []domain.Route
	HydrationTimeout time.Duration
	Logger           *slog.Logger
}

type Guard struct {
	sessions Sessions
	routes   []domain.Route
	timeout  time.Duration
	logger   *slog.Logger
}

func New(sessions Sessions, opts Options) *Guard {
	if opts.Routes == nil {
		opts.Routes = DefaultRoutes()
	}
	if opts.HydrationTimeout <= 0 {
		opts.HydrationTimeout = DefaultHydrationTimeout
	}
	return &Guard{
		sessions: sessions,
		routes:   opts.Routes,
		timeout:  opts.HydrationTimeout,
		logger:   slogx.OrDefault(opts.Logger).With("component", "guard"),
	}
}

// Allow is the access predicate: public routes, or any route once
// authenticated.
func Allow(route domain.Route, authenticated bool) bool {
	return route.Public || authenticated
}

// Lookup finds the route for path. Exact matches win over prefixes.
func (g *Guard) Lookup(path string) (domain.Route, bool) {
	var (
		best  domain.Route
		found bool
	)
	for _, r := range g.routes {
		if r.Path == path {
			return r, true
		}
		if strings.HasSuffix(r.Path, "/") && r.Path != "/" && strings.HasPrefix(path, r.Path) {
			if !found || len(r.Path) > len(best.Path) {
				best, found = r, true
			}
		}
	}
	return best, found
}

// Check decides for route. It never answers before the session has been
// hydrated; if hydration does not finish within the timeout, or ctx ends
// first, the session counts as unauthenticated.
func (g *Guard) Check(ctx context.Context, route domain.Route) Decision {
	authenticated := g.waitHydrated(ctx) && g.sessions.Authenticated()

	switch {
	case route.GuestOnly && authenticated:
		return Decision{Redirect: domain.PathHome}
	case Allow(route, authenticated):
		return Decision{Allow: true}
	default:
		return Decision{Redirect: domain.PathLoginOptions}
	}
}

// CheckPath resolves path against the route table and decides for it.
// Unknown paths are shown as not found whatever the session.
func (g *Guard) CheckPath(ctx context.Context, path string) Decision {
	route, ok := g.Lookup(path)
	if !ok {
		return Decision{Allow: true, NotFound: true}
	}
	return g.Check(ctx, route)
}

func (g *Guard) waitHydrated(ctx context.Context) bool {
	hydrated := g.sessions.Hydrated()

	select {
	case <-hydrated:
		return true
	default:
	}

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case <-hydrated:
		return true
	case <-timer.C:
		g.logger.Warn("session hydration timed out, treating as unauthenticated", "timeout", g.timeout)
		return false
	case <-ctx.Done():
		return false
	}
}
