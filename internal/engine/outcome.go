package engine

import (
	"time"

	"github.com/udisondev/playersync/internal/model"
)

// Status tags an operation outcome. The engine never returns a Go error for
// protocol-level rejections; errors are reserved for transient faults.
type Status string

const (
	StatusOK               Status = "ok"
	StatusActiveElsewhere  Status = "active_elsewhere"
	StatusValidationFailed Status = "validation_failed"
	StatusPlayerNotFound   Status = "player_not_found"
	StatusNotSessionOwner  Status = "not_session_owner"
	StatusInvalidSyncSeq   Status = "invalid_sync_seq"
	StatusSkipped          Status = "skipped"
	StatusError            Status = "error"
)

// ConnectResult is the outcome of a Connect operation.
type ConnectResult struct {
	Status       Status
	SteamID      string
	SyncSeq      int64
	Doc          *model.Document // set on StatusOK, tracking stripped
	ActiveServer string          // set on StatusActiveElsewhere
	ActiveSince  time.Time       // set on StatusActiveElsewhere
	RetryAfter   time.Duration
	MaxRetries   int
}

// SyncResult is the outcome of PeriodicSync, Disconnect and CrashRecovery.
type SyncResult struct {
	Status       Status
	SteamID      string
	SyncSeq      int64
	Flagged      bool
	FlagReason   string
	ExpectedSeq  int64  // set on StatusInvalidSyncSeq
	ActiveServer string // set on StatusNotSessionOwner
	Errors       []string
	SkipReason   string // set on StatusSkipped
}

// BatchResult summarizes a batch crash recovery.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Results    []SyncResult
}
