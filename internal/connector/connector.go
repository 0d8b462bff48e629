// Package connector speaks the WebSocket control plane to game servers, in
// both orientations: dialing out to configured servers and accepting inbound
// connections on a listener.
package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/playersync/internal/config"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/registry"
)

// TokenHeader carries the API token during the WebSocket handshake.
const TokenHeader = "X-Sync-Token"

// Connector maintains one outbound connection per configured game server,
// redialing with exponential back-off when a connection drops.
type Connector struct {
	entries   []config.GameServerEntry
	reconnect config.ReconnectConfig
	eng       *engine.Engine
	reg       *registry.Registry
}

// New creates a Connector for the configured game servers.
func New(cfg *config.Config, eng *engine.Engine, reg *registry.Registry) *Connector {
	return &Connector{
		entries:   cfg.GameServers,
		reconnect: cfg.Reconnect,
		eng:       eng,
		reg:       reg,
	}
}

// Run dials every configured game server and keeps the connections alive
// until ctx is canceled. A server whose token cannot be resolved is a
// configuration error and fails the whole group.
func (c *Connector) Run(ctx context.Context) error {
	if len(c.entries) == 0 {
		slog.Info("no game servers configured, connector idle")
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, entry := range c.entries {
		g.Go(func() error {
			return c.maintain(ctx, entry)
		})
	}
	return g.Wait()
}

// maintain owns the reconnect loop for one game server. The back-off resets
// after every successful session so a long-lived connection that drops is
// redialed promptly.
func (c *Connector) maintain(ctx context.Context, entry config.GameServerEntry) error {
	srv, err := c.reg.ResolveToken(ctx, entry.Token)
	if err != nil {
		return fmt.Errorf("resolving token for %s: %w", entry.URL, err)
	}

	for {
		conn, err := c.dial(ctx, entry)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dialing %s: %w", entry.URL, err)
		}

		slog.Info("connected to game server", "serverId", srv.ServerID, "url", entry.URL)
		sess := NewSession(conn, srv, c.eng, c.reg)
		if err := sess.Run(ctx); err != nil {
			slog.Warn("session ended", "serverId", srv.ServerID, "err", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		slog.Info("reconnecting to game server", "serverId", srv.ServerID, "url", entry.URL)
	}
}

func (c *Connector) dial(ctx context.Context, entry config.GameServerEntry) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.reconnect.Timeout}
	header := http.Header{TokenHeader: []string{entry.Token}}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.reconnect.Delay
	bo.MaxInterval = c.reconnect.DelayMax
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = bo
	if c.reconnect.Attempts > 0 {
		policy = backoff.WithMaxRetries(bo, uint64(c.reconnect.Attempts))
	}
	policy = backoff.WithContext(policy, ctx)

	var conn *websocket.Conn
	op := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.reconnect.Timeout)
		defer cancel()
		var err error
		conn, _, err = dialer.DialContext(dialCtx, entry.URL, header)
		return err
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("dial failed", "url", entry.URL, "retryIn", next, "err", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return conn, nil
}

// Listener accepts inbound WebSocket connections from game servers that dial
// the service instead of the other way around.
type Listener struct {
	addr     string
	eng      *engine.Engine
	reg      *registry.Registry
	upgrader websocket.Upgrader
}

// NewListener creates a Listener bound to addr.
func NewListener(addr string, eng *engine.Engine, reg *registry.Registry) *Listener {
	return &Listener{
		addr: addr,
		eng:  eng,
		reg:  reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game servers are not browsers; origin checks don't apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves the WebSocket endpoint until ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		l.serve(ctx, w, r)
	})

	server := &http.Server{Addr: l.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("websocket listener started", "addr", l.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("websocket listener: %w", err)
	}
}

func (l *Listener) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(TokenHeader)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	srv, err := l.reg.ResolveToken(r.Context(), token)
	if err != nil {
		slog.Warn("rejected websocket handshake", "remote", r.RemoteAddr, "err", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	slog.Info("game server connected", "serverId", srv.ServerID, "remote", r.RemoteAddr)
	sess := NewSession(conn, srv, l.eng, l.reg)
	if err := sess.Run(ctx); err != nil {
		slog.Warn("session ended", "serverId", srv.ServerID, "err", err)
	}
}
