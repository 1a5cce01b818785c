// Package memory is a process-local Store, used in tests and when no
// durable storage is configured.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/authflow/internal/auth/store"
)

type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{records: make(map[string][]byte)}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.records[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Save(_ context.Context, key string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = append([]byte(nil), payload...)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
