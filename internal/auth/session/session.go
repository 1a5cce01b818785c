// Package session holds the single process-wide authentication state and
// keeps it in step with durable client storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/store"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// DefaultKey is the storage key used when Options.Key is empty.
const DefaultKey = "authflow:session"

type Options struct {
	// Key names the persisted record.
	Key    string
	Logger *slog.Logger
}

// Store is the SessionStore. All reads return copies; all writes go
// through SetAuthenticated, UpdateProfile and Clear, which are serialized
// and persisted before observers are told.
type Store struct {
	backend store.Store
	key     string
	logger  *slog.Logger

	// writeMu orders mutations, their persistence and notification.
	writeMu sync.Mutex
	// written is set by the first mutation, under writeMu.
	written bool

	mu      sync.RWMutex
	current domain.Session

	hydrateOnce sync.Once
	hydrateErr  error
	hydrated    chan struct{}

	obsMu     sync.Mutex
	observers map[uint64]func(domain.Session)
	nextObs   uint64
}

func NewStore(backend store.Store, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	return &Store{
		backend:   backend,
		key:       opts.Key,
		logger:    slogx.OrDefault(opts.Logger).With("component", "session"),
		hydrated:  make(chan struct{}),
		observers: make(map[uint64]func(domain.Session)),
	}
}

// Hydrate restores the persisted state. It runs once; later calls return
// the first result. A missing or malformed record yields the empty session
// and malformed records are deleted. A storage failure also yields the empty
// session, and the error is returned. Once a mutation has run the persisted
// record is already its result, so hydration keeps the in-memory state.
func (s *Store) Hydrate(ctx context.Context) error {
	s.hydrateOnce.Do(func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		defer close(s.hydrated)

		if s.written {
			s.logger.Info("session hydrated", "authenticated", s.Authenticated(), "source", "memory")
			return
		}

		restored, err := s.load(ctx)
		if err != nil {
			s.hydrateErr = err
		}

		s.mu.Lock()
		s.current = restored
		s.mu.Unlock()

		s.logger.Info("session hydrated", "authenticated", restored.Authenticated)
	})
	return s.hydrateErr
}

func (s *Store) load(ctx context.Context) (domain.Session, error) {
	payload, err := s.backend.Load(ctx, s.key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Session{}, nil
	case errors.Is(err, store.ErrCorrupt):
		s.discard(ctx, err)
		return domain.Session{}, nil
	case err != nil:
		s.logger.Error("failed to load persisted session", "error", err)
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	restored, err := domain.DecodeSession(payload)
	if err != nil {
		s.discard(ctx, err)
		return domain.Session{}, nil
	}
	return restored, nil
}

func (s *Store) discard(ctx context.Context, cause error) {
	s.logger.Warn("discarding malformed persisted session", "error", cause)
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.logger.Error("failed to delete malformed persisted session", "error", err)
	}
}

// Hydrated is closed once Hydrate has finished.
func (s *Store) Hydrated() <-chan struct{} {
	return s.hydrated
}

// IsHydrated reports whether Hydrate has finished.
func (s *Store) IsHydrated() bool {
	select {
	case <-s.hydrated:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated
}

// User returns a copy of the stored profile, or false when unauthenticated.
func (s *Store) User() (domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.User == nil {
		return domain.UserProfile{}, false
	}
	return *s.current.User, true
}

// SetAuthenticated stores user and marks the session authenticated.
func (s *Store) SetAuthenticated(ctx context.Context, user domain.UserProfile) error {
	return s.mutate(ctx, func(domain.Session) (domain.Session, bool) {
		return domain.Session{User: &user, Authenticated: true}, true
	})
}

// UpdateProfile merges patch into the stored user. It is a no-op while
// unauthenticated or when the patch is for another user.
func (s *Store) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) error {
	return s.mutate(ctx, func(cur domain.Session) (domain.Session, bool) {
		if !cur.Authenticated || patch.IsZero() || !patch.AppliesTo(*cur.User) {
			return cur, false
		}
		u := patch.Apply(*cur.User)
		return domain.Session{User: &u, Authenticated: true}, true
	})
}

// Clear resets to the empty session and removes the persisted record.
// Clearing an empty session is harmless.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func(domain.Session) (domain.Session, bool) {
		return domain.Session{}, true
	})
}

// mutate applies fn, persists the result and notifies observers. The
// in-memory state changes even when persistence fails.
func (s *Store) mutate(ctx context.Context, fn func(domain.Session) (domain.Session, bool)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next, changed := fn(s.current.Clone())
	if changed {
		s.current = next
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	s.written = true

	err := s.persist(ctx, next)
	s.notify(next)
	return err
}

func (s *Store) persist(ctx context.Context, sess domain.Session) error {
	if !sess.Authenticated {
		if err := s.backend.Delete(ctx, s.key); err != nil {
			s.logger.Error("failed to remove persisted session", "error", err)
			return fmt.Errorf("remove session: %w", err)
		}
		return nil
	}

	payload, err := domain.EncodeSession(sess)
	if err != nil {
		return err
	}
	if err := s.backend.Save(ctx, s.key, payload); err != nil {
		s.logger.Error("failed to persist session", "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Subscribe registers fn to receive a copy of the session after every
// change. Observers run on the mutating goroutine and must not mutate the
// store themselves.
func (s *Store) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) notify(sess domain.Session) {
	s.obsMu.Lock()
	fns := make([]func(domain.Session), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(sess.Clone())
	}
}
