package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/authflow/pkg/cryptox"
)

// Sealed encrypts records at rest before handing them to the wrapped Store.
type Sealed struct {
	Store
	sealer *cryptox.Sealer
}

// NewSealed wraps inner so every record is sealed with sealer.
func NewSealed(inner Store, sealer *cryptox.Sealer) *Sealed {
	return &Sealed{Store: inner, sealer: sealer}
}

func (s *Sealed) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	plain, err := s.sealer.Open(payload)
	if err != nil {
		if errors.Is(err, cryptox.ErrNotSealed) || errors.Is(err, cryptox.ErrUnseal) {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil, err
	}
	return plain, nil
}

func (s *Sealed) Save(ctx context.Context, key string, payload []byte) error {
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return fmt.Errorf("failed to seal record: %w", err)
	}
	return s.Store.Save(ctx, key, sealed)
}
