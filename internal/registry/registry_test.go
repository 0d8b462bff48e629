package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/testutil"
)

type stubConn struct {
	serverID string
	closed   bool
}

func (c *stubConn) ServerID() string { return c.serverID }
func (c *stubConn) Close() error     { c.closed = true; return nil }

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	require.NoError(t, err)
	b, err := GenerateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	// 32 bytes base64url without padding.
	assert.Len(t, a, 43)
	assert.NotContains(t, a, "=")
}

func TestBindConnection(t *testing.T) {
	r := New(nil, nil)

	first := &stubConn{serverID: "gs-1"}
	r.BindConnection("gs-1", first)
	assert.Same(t, first, r.Connection("gs-1"))

	// A new connection for the same server replaces and closes the old one.
	second := &stubConn{serverID: "gs-1"}
	r.BindConnection("gs-1", second)
	assert.Same(t, second, r.Connection("gs-1"))
	assert.True(t, first.closed)

	// Unbinding a stale connection is a no-op.
	r.UnbindConnection("gs-1", first)
	assert.Same(t, second, r.Connection("gs-1"))

	r.UnbindConnection("gs-1", second)
	assert.Nil(t, r.Connection("gs-1"))
}

func TestPlayerCounts(t *testing.T) {
	r := New(nil, nil)

	r.PlayerConnected("gs-1")
	r.PlayerConnected("gs-1")
	r.PlayerConnected("gs-2")
	assert.Equal(t, 2, r.PlayerCount("gs-1"))

	r.PlayerDisconnected("gs-1")
	assert.Equal(t, 1, r.PlayerCount("gs-1"))

	// Never goes negative.
	r.PlayerDisconnected("gs-2")
	r.PlayerDisconnected("gs-2")
	assert.Equal(t, 0, r.PlayerCount("gs-2"))

	counts := r.Counts()
	assert.Equal(t, map[string]int{"gs-1": 1, "gs-2": 0}, counts)
}

func TestResolveTokenIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	pool := testutil.SetupTestDB(t)
	servers := db.NewServerRepository(pool)
	players := db.NewPlayerRepository(pool)
	r := New(servers, players)

	srv, err := r.RegisterServer(ctx, "gs-main")
	require.NoError(t, err)
	require.NotEmpty(t, srv.Token)

	t.Run("valid token", func(t *testing.T) {
		got, err := r.ResolveToken(ctx, srv.Token)
		require.NoError(t, err)
		assert.Equal(t, "gs-main", got.ServerID)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := r.ResolveToken(ctx, "nope")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("inactive server", func(t *testing.T) {
		require.NoError(t, servers.SetActive(ctx, "gs-main", false))
		_, err := r.ResolveToken(ctx, srv.Token)
		assert.ErrorIs(t, err, ErrServerInactive)
		require.NoError(t, servers.SetActive(ctx, "gs-main", true))
	})

	t.Run("last seen touch", func(t *testing.T) {
		r.TouchLastSeen(ctx, "gs-main")
		got, err := servers.GetByServerID(ctx, "gs-main")
		require.NoError(t, err)
		require.NotNil(t, got.LastSeen)
		assert.WithinDuration(t, time.Now(), *got.LastSeen, time.Minute)
	})
}
