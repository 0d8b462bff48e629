// Package registry owns the mapping from API token to game server record and
// from server id to live connection, plus the per-server active player index.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/model"
)

var (
	// ErrTokenNotFound means no game server holds the presented token.
	ErrTokenNotFound = errors.New("token not found")
	// ErrServerInactive means the token resolved but the server is disabled.
	ErrServerInactive = errors.New("server inactive")
)

// Connection is a live connector session bound to a server id.
type Connection interface {
	ServerID() string
	Close() error
}

// Registry resolves tokens and tracks live connections. Connection and
// player-count state is in-memory; server records live in the database.
type Registry struct {
	servers *db.ServerRepository
	players *db.PlayerRepository

	connections sync.Map // map[string]Connection

	mu     sync.Mutex
	counts map[string]int
}

// New creates a Registry over the server and player repositories.
func New(servers *db.ServerRepository, players *db.PlayerRepository) *Registry {
	return &Registry{
		servers: servers,
		players: players,
		counts:  make(map[string]int),
	}
}

// ResolveToken authenticates a token. Inactive servers are rejected; flagged
// servers are logged and let through.
func (r *Registry) ResolveToken(ctx context.Context, token string) (*model.GameServer, error) {
	srv, err := r.servers.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if srv == nil {
		return nil, ErrTokenNotFound
	}
	if !srv.Active {
		return nil, fmt.Errorf("server %s: %w", srv.ServerID, ErrServerInactive)
	}
	if srv.Flagged {
		slog.Warn("flagged server authenticated", "serverId", srv.ServerID, "reason", srv.FlagReason)
	}
	return srv, nil
}

// TouchLastSeen bumps the server's last_seen timestamp.
func (r *Registry) TouchLastSeen(ctx context.Context, serverID string) {
	if err := r.servers.TouchLastSeen(ctx, serverID, time.Now()); err != nil {
		slog.Error("failed to touch last seen", "serverId", serverID, "err", err)
	}
}

// RegisterServer creates a server record with a freshly generated token and
// returns it. Used by operator tooling.
func (r *Registry) RegisterServer(ctx context.Context, serverID string) (*model.GameServer, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	return r.servers.Create(ctx, serverID, token)
}

// GenerateToken returns 256 bits from a cryptographically strong source,
// URL-safe encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// BindConnection records the live connection for a server. A previous
// connection for the same server is closed.
func (r *Registry) BindConnection(serverID string, c Connection) {
	if prev, ok := r.connections.Swap(serverID, c); ok {
		old := prev.(Connection)
		if old != c {
			slog.Warn("replacing live connection", "serverId", serverID)
			_ = old.Close()
		}
	}
}

// UnbindConnection forgets the connection if it is still the bound one.
func (r *Registry) UnbindConnection(serverID string, c Connection) {
	r.connections.CompareAndDelete(serverID, c)
}

// Connection returns the live connection for a server, or nil.
func (r *Registry) Connection(serverID string) Connection {
	val, ok := r.connections.Load(serverID)
	if !ok {
		return nil
	}
	return val.(Connection)
}

// SweepServer atomically clears the session lock on every player pinned to
// the server, and resets its in-memory player count. Called when a game
// server disconnects.
func (r *Registry) SweepServer(ctx context.Context, serverID string) (int64, error) {
	released, err := r.players.SweepServer(ctx, serverID)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	delete(r.counts, serverID)
	r.mu.Unlock()

	if released > 0 {
		slog.Info("swept server sessions", "serverId", serverID, "released", released)
	}
	return released, nil
}

// PlayerConnected bumps the per-server active player count.
func (r *Registry) PlayerConnected(serverID string) {
	r.mu.Lock()
	r.counts[serverID]++
	r.mu.Unlock()
}

// PlayerDisconnected lowers the per-server active player count.
func (r *Registry) PlayerDisconnected(serverID string) {
	r.mu.Lock()
	if r.counts[serverID] > 0 {
		r.counts[serverID]--
	}
	r.mu.Unlock()
}

// PlayerCount returns the active player count for a server.
func (r *Registry) PlayerCount(serverID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[serverID]
}

// Counts returns a snapshot of all per-server player counts.
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}
