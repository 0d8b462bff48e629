package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/model"
	"github.com/udisondev/playersync/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20 // batch recovery frames carry up to 100 documents
	sendQueueSize  = 64
)

// Session is one authenticated WebSocket conversation with a game server,
// identical for both orientations. Frames are handled sequentially, which
// serializes operations per session; the outbound side goes through a single
// writer goroutine as the transport requires.
type Session struct {
	conn *websocket.Conn
	srv  *model.GameServer
	eng  *engine.Engine
	reg  *registry.Registry

	out       chan Frame
	closeOnce sync.Once
}

// NewSession wraps an authenticated connection.
func NewSession(conn *websocket.Conn, srv *model.GameServer, eng *engine.Engine, reg *registry.Registry) *Session {
	return &Session{
		conn: conn,
		srv:  srv,
		eng:  eng,
		reg:  reg,
		out:  make(chan Frame, sendQueueSize),
	}
}

// ServerID returns the id of the game server this session belongs to.
func (s *Session) ServerID() string {
	return s.srv.ServerID
}

// Close tears down the transport. Safe to call concurrently.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Run drives the session until the connection drops or ctx is canceled.
// On exit every in-flight operation is cut at the transport boundary and the
// server's session locks are swept.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.reg.BindConnection(s.srv.ServerID, s)
	defer func() {
		s.reg.UnbindConnection(s.srv.ServerID, s)
		s.Close()
		// Sweep with a fresh context: the session context is already gone.
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer sweepCancel()
		if _, err := s.reg.SweepServer(sweepCtx, s.srv.ServerID); err != nil {
			slog.Error("sweep after disconnect failed", "serverId", s.srv.ServerID, "err", err)
		}
	}()

	go s.writePump(ctx)

	s.send(EventAuthSuccess, AuthSuccess{ServerID: s.srv.ServerID})
	s.send(EventServerInfo, ServerInfo{
		ServerID:    s.srv.ServerID,
		PlayerCount: s.reg.PlayerCount(s.srv.ServerID),
	})

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("reading frame: %w", err)
			}
			return nil
		}
		s.reg.TouchLastSeen(ctx, s.srv.ServerID)
		s.handle(ctx, frame)
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			s.Close()
			return
		case frame := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				slog.Error("writing frame", "serverId", s.srv.ServerID, "event", frame.Event, "err", err)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) send(event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		slog.Error("marshaling frame", "event", event, "err", err)
		return
	}
	select {
	case s.out <- frame:
	default:
		slog.Warn("send queue full, dropping frame", "serverId", s.srv.ServerID, "event", event)
	}
}

func (s *Session) handle(ctx context.Context, frame Frame) {
	switch frame.Event {
	case EventPlayerConnect:
		s.handleConnect(ctx, frame.Data)
	case EventPlayerSync:
		s.handleSync(ctx, frame.Data)
	case EventPlayerDisconnect:
		s.handleDisconnect(ctx, frame.Data)
	case EventPlayerCrashRecovery:
		s.handleRecovery(ctx, frame.Data)
	case EventPlayerBatchRecovery:
		s.handleBatchRecovery(ctx, frame.Data)
	default:
		slog.Warn("unknown event", "serverId", s.srv.ServerID, "event", frame.Event)
	}
}

func (s *Session) handleConnect(ctx context.Context, data json.RawMessage) {
	var req ConnectRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.send(EventPlayerError, PlayerError{Error: "malformed payload"})
		return
	}

	res, err := s.eng.Connect(ctx, s.srv.ServerID, req.SteamID, req.EOSID, req.Name)
	if err != nil {
		slog.Error("connect failed", "steamId", req.SteamID, "serverId", s.srv.ServerID, "err", err)
		s.send(EventPlayerError, PlayerError{SteamID: req.SteamID, Error: "transient"})
		return
	}

	switch res.Status {
	case engine.StatusOK:
		s.reg.PlayerConnected(s.srv.ServerID)
		s.send(EventPlayerData, PlayerData{
			SteamID: res.SteamID,
			Data:    *res.Doc,
			SyncSeq: res.SyncSeq,
		})
	case engine.StatusActiveElsewhere:
		s.send(EventPlayerWait, PlayerWait{
			SteamID:      res.SteamID,
			ActiveServer: res.ActiveServer,
			RetryAfterMs: res.RetryAfter.Milliseconds(),
			MaxRetries:   res.MaxRetries,
		})
	default:
		s.send(EventPlayerError, PlayerError{SteamID: req.SteamID, Error: string(res.Status)})
	}
}

func (s *Session) handleSync(ctx context.Context, data json.RawMessage) {
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.send(EventSyncError, SyncError{Error: "malformed payload"})
		return
	}

	res, err := s.eng.PeriodicSync(ctx, s.srv.ServerID, doc)
	if err != nil {
		slog.Error("periodic sync failed", "steamId", doc.SteamID, "serverId", s.srv.ServerID, "err", err)
		s.send(EventSyncError, SyncError{SteamID: doc.SteamID, Error: "transient"})
		return
	}

	if res.Status != engine.StatusOK {
		s.send(EventSyncError, syncError(res))
		return
	}
	s.send(EventSyncAck, SyncAck{SteamID: res.SteamID, SyncSeq: res.SyncSeq, Flagged: res.Flagged})
}

func (s *Session) handleDisconnect(ctx context.Context, data json.RawMessage) {
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.send(EventDisconnectError, SyncError{Error: "malformed payload"})
		return
	}

	res, err := s.eng.Disconnect(ctx, s.srv.ServerID, doc)
	if err != nil {
		slog.Error("disconnect sync failed", "steamId", doc.SteamID, "serverId", s.srv.ServerID, "err", err)
		s.send(EventDisconnectError, SyncError{SteamID: doc.SteamID, Error: "transient"})
		return
	}

	if res.Status != engine.StatusOK {
		s.send(EventDisconnectError, syncError(res))
		return
	}
	s.reg.PlayerDisconnected(s.srv.ServerID)
	s.send(EventDisconnectAck, DisconnectAck{SteamID: res.SteamID, SyncSeq: res.SyncSeq})
}

func (s *Session) handleRecovery(ctx context.Context, data json.RawMessage) {
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.send(EventRecoveryError, SyncError{Error: "malformed payload"})
		return
	}
	s.sendRecoveryResult(s.recoverOne(ctx, doc))
}

func (s *Session) recoverOne(ctx context.Context, doc model.Document) *engine.SyncResult {
	res, err := s.eng.CrashRecovery(ctx, s.srv.ServerID, doc)
	if err != nil {
		slog.Error("crash recovery failed", "steamId", doc.SteamID, "serverId", s.srv.ServerID, "err", err)
		return &engine.SyncResult{
			Status:  engine.StatusError,
			SteamID: doc.SteamID,
			Errors:  []string{"transient"},
		}
	}
	return res
}

func (s *Session) sendRecoveryResult(res *engine.SyncResult) {
	switch res.Status {
	case engine.StatusOK:
		s.send(EventRecoveryAck, RecoveryAck{SteamID: res.SteamID, SyncSeq: res.SyncSeq, Flagged: res.Flagged})
	case engine.StatusSkipped:
		s.send(EventRecoveryAck, RecoveryAck{SteamID: res.SteamID, SyncSeq: res.SyncSeq, Skipped: true, Reason: res.SkipReason})
	default:
		s.send(EventRecoveryError, syncError(res))
	}
}

func (s *Session) handleBatchRecovery(ctx context.Context, data json.RawMessage) {
	var req BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.send(EventRecoveryError, SyncError{Error: "malformed payload"})
		return
	}
	if len(req.Players) > engine.MaxBatchSize {
		s.send(EventRecoveryError, SyncError{
			Error: fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Players), engine.MaxBatchSize),
		})
		return
	}

	summary := BatchComplete{Total: len(req.Players)}
	for _, doc := range req.Players {
		res := s.recoverOne(ctx, doc)
		s.sendRecoveryResult(res)
		switch res.Status {
		case engine.StatusOK, engine.StatusSkipped:
			summary.Successful++
		default:
			summary.Failed++
		}
	}
	s.send(EventBatchComplete, summary)
}

func syncError(res *engine.SyncResult) SyncError {
	e := SyncError{SteamID: res.SteamID, Error: string(res.Status), Errors: res.Errors}
	switch res.Status {
	case engine.StatusInvalidSyncSeq:
		e.Errors = append(e.Errors, fmt.Sprintf("expected syncSeq %d", res.ExpectedSeq))
	case engine.StatusNotSessionOwner:
		if res.ActiveServer != "" {
			e.Errors = append(e.Errors, fmt.Sprintf("owned by %s", res.ActiveServer))
		}
	}
	return e
}
