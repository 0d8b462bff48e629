package model

import "time"

// AuditKind identifies which sync operation produced an audit entry.
type AuditKind string

const (
	AuditConnect       AuditKind = "connect"
	AuditPeriodic      AuditKind = "periodic"
	AuditDisconnect    AuditKind = "disconnect"
	AuditCrashRecovery AuditKind = "crash_recovery"
)

// AuditEntry is one append-only record of a sync attempt.
type AuditEntry struct {
	ID            int64
	ServerID      string
	PlayerSteamID string
	Kind          AuditKind
	SeqBefore     *int64
	SeqAfter      int64
	Before        []byte // summary JSON, nil on connect
	After         []byte // summary JSON
	Flagged       bool
	FlagReason    string
	DurationMs    int64
	CreatedAt     time.Time
}

// StatsSummary is the compact before/after snapshot stored with each audit
// entry. Never read back on the hot path.
type StatsSummary struct {
	SyncSeq       int64 `json:"syncSeq"`
	CurrencyTotal int64 `json:"currencyTotal"`
	CurrencySpent int64 `json:"currencySpent"`
	XPTotal       int64 `json:"xpTotal"`
	Prestige      int32 `json:"prestige"`
	PermaTokens   int32 `json:"permaTokens"`
	TimePlayed    int64 `json:"timePlayed"`
}
