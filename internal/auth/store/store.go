package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrCorrupt reports a record that exists but cannot be read back,
	// e.g. a sealed record opened with the wrong secret.
	ErrCorrupt = errors.New("store: corrupt record")
)

// Store is durable client storage for the persisted auth state. Concrete
// drivers (memory, sqlite, redis) implement this. Records are opaque bytes
// keyed by an application-defined storage key.
type Store interface {
	// Load returns the record for key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save creates or replaces the record for key.
	Save(ctx context.Context, key string, payload []byte) error

	// Delete removes the record for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
