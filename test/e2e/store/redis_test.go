package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/authflow/internal/auth/domain"
	"github.com/aussiebroadwan/authflow/internal/auth/session"
	"github.com/aussiebroadwan/authflow/internal/auth/store"
	redisstore "github.com/aussiebroadwan/authflow/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/authflow/pkg/cryptox"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end persistence tests against a real Redis server. A session saved
 * by one process must hydrate in another process pointed at the same server.
 */

const redisImage = "redis:7-alpine"

// setupRedisContainer starts Redis in a container and returns its address.
func setupRedisContainer(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        redisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return fmt.Sprintf("%s:%s", host, mappedPort.Port()), cleanup
}

func openSessions(t *testing.T, addr string, sealer *cryptox.Sealer) (*session.Store, store.Store) {
	t.Helper()

	backend, err := redisstore.Dial(context.Background(), redisstore.Options{Addr: addr, Prefix: "e2e"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	var s store.Store = backend
	if sealer != nil {
		s = store.NewSealed(backend, sealer)
	}
	return session.NewStore(s, session.Options{Key: "session", Logger: slogx.Discard()}), s
}

func TestSessionSharedThroughRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	addr, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := t.Context()
	sealer, err := cryptox.NewSealer("e2e-secret")
	require.NoError(t, err)

	first, _ := openSessions(t, addr, sealer)
	require.NoError(t, first.Hydrate(ctx))
	require.NoError(t, first.SetAuthenticated(ctx, domain.UserProfile{ID: "u1", Email: "ada@example.com"}))

	second, _ := openSessions(t, addr, sealer)
	require.NoError(t, second.Hydrate(ctx))

	snap := second.Snapshot()
	require.True(t, snap.Authenticated)
	require.Equal(t, "ada@example.com", snap.User.Email)

	require.NoError(t, second.Clear(ctx))

	third, _ := openSessions(t, addr, sealer)
	require.NoError(t, third.Hydrate(ctx))
	require.False(t, third.Snapshot().Authenticated)
}

func TestSealedRecordUnreadableWithOtherSecret(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	addr, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := t.Context()
	a, err := cryptox.NewSealer("secret-a")
	require.NoError(t, err)
	b, err := cryptox.NewSealer("secret-b")
	require.NoError(t, err)

	writer, _ := openSessions(t, addr, a)
	require.NoError(t, writer.Hydrate(ctx))
	require.NoError(t, writer.SetAuthenticated(ctx, domain.UserProfile{ID: "u1", Email: "ada@example.com"}))

	reader, backend := openSessions(t, addr, b)
	require.NoError(t, reader.Hydrate(ctx))
	require.False(t, reader.Snapshot().Authenticated)

	_, err = backend.Load(ctx, "session")
	require.ErrorIs(t, err, store.ErrNotFound, "unreadable record is discarded on hydrate")
}
