package connector

import (
	"encoding/json"

	"github.com/udisondev/playersync/internal/model"
)

// Wire events, game server → service.
const (
	EventPlayerConnect       = "player:connect"
	EventPlayerSync          = "player:sync"
	EventPlayerDisconnect    = "player:disconnect"
	EventPlayerCrashRecovery = "player:crash-recovery"
	EventPlayerBatchRecovery = "player:batch-crash-recovery"
)

// Wire events, service → game server.
const (
	EventAuthSuccess     = "auth:success"
	EventServerInfo      = "server:info"
	EventPlayerData      = "player:data"
	EventPlayerWait      = "player:wait"
	EventPlayerError     = "player:error"
	EventSyncAck         = "sync:ack"
	EventSyncError       = "sync:error"
	EventDisconnectAck   = "disconnect:ack"
	EventDisconnectError = "disconnect:error"
	EventRecoveryAck     = "recovery:ack"
	EventRecoveryError   = "recovery:error"
	EventBatchComplete   = "batch-recovery:complete"
)

// Frame is the envelope of every message: an event name plus its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a Frame. Marshal failures are programmer
// errors surfaced to the caller.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// ConnectRequest is the player:connect payload.
type ConnectRequest struct {
	SteamID string  `json:"steamId"`
	EOSID   *string `json:"eosId,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// BatchRequest is the player:batch-crash-recovery payload.
type BatchRequest struct {
	Players []model.Document `json:"players"`
}

// AuthSuccess is sent once after the handshake token resolves.
type AuthSuccess struct {
	ServerID string `json:"serverId"`
}

// ServerInfo reports the current player count for the session's server.
type ServerInfo struct {
	ServerID    string `json:"serverId"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerData answers player:connect with the document, tracking stripped.
type PlayerData struct {
	SteamID string         `json:"steamId"`
	Data    model.Document `json:"data"`
	SyncSeq int64          `json:"syncSeq"`
}

// PlayerWait tells a contending server to retry later.
type PlayerWait struct {
	SteamID      string `json:"steamId"`
	ActiveServer string `json:"activeServer"`
	RetryAfterMs int64  `json:"retryAfterMs"`
	MaxRetries   int    `json:"maxRetries"`
}

// PlayerError is the connect failure frame.
type PlayerError struct {
	SteamID string `json:"steamId"`
	Error   string `json:"error"`
}

// SyncAck acknowledges a committed periodic sync.
type SyncAck struct {
	SteamID string `json:"steamId"`
	SyncSeq int64  `json:"syncSeq"`
	Flagged bool   `json:"flagged"`
}

// SyncError rejects a periodic sync.
type SyncError struct {
	SteamID string   `json:"steamId"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors,omitempty"`
}

// DisconnectAck acknowledges a committed disconnect sync.
type DisconnectAck struct {
	SteamID string `json:"steamId"`
	SyncSeq int64  `json:"syncSeq"`
}

// RecoveryAck acknowledges a crash recovery, committed or skipped.
type RecoveryAck struct {
	SteamID string `json:"steamId"`
	SyncSeq int64  `json:"syncSeq"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Flagged bool   `json:"flagged,omitempty"`
}

// BatchComplete summarizes a batch crash recovery.
type BatchComplete struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
