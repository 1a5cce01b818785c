package store_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/authflow/internal/auth/store"
	"github.com/aussiebroadwan/authflow/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/authflow/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealedStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inner := memory.NewStore()

	sealer, err := cryptox.NewSealer("local-secret")
	require.NoError(t, err)
	s := store.NewSealed(inner, sealer)

	require.NoError(t, s.Save(ctx, "k", []byte(`{"v":1}`)))

	raw, err := inner.Load(ctx, "k")
	require.NoError(t, err)
	require.True(t, cryptox.IsSealed(raw))
	require.NotContains(t, string(raw), `"v"`)

	got, err := s.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `{"v":1}`, string(got))

	t.Run("missing record", func(t *testing.T) {
		_, err := s.Load(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("plaintext record is corrupt", func(t *testing.T) {
		require.NoError(t, inner.Save(ctx, "plain", []byte(`{"v":1}`)))
		_, err := s.Load(ctx, "plain")
		require.ErrorIs(t, err, store.ErrCorrupt)
	})

	t.Run("wrong secret is corrupt", func(t *testing.T) {
		other, err := cryptox.NewSealer("another-secret")
		require.NoError(t, err)
		_, err = store.NewSealed(inner, other).Load(ctx, "k")
		require.ErrorIs(t, err, store.ErrCorrupt)
	})
}
