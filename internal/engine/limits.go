package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/udisondev/playersync/internal/model"
)

const (
	// ActiveServerTimeout is the session-lock expiry window: a Connect after
	// this much silence may claim the player from another server.
	ActiveServerTimeout = 30 * time.Second

	// SeqTolerance caps the forward jump of syncSeq on periodic syncs.
	SeqTolerance = 10

	// RecoverySeqTolerance is the wider jump window for crash recovery,
	// where a violation flags instead of rejecting.
	RecoverySeqTolerance = 100

	// MaxBatchSize bounds one batch crash recovery call.
	MaxBatchSize = 100

	// ConnectRetryAfter and ConnectMaxRetries shape the wait-and-retry
	// advice returned on a contended Connect.
	ConnectRetryAfter = 2 * time.Second
	ConnectMaxRetries = 5
)

// Per-sync delta limits. Exceeding one flags the sync for operator review
// without rejecting it.
const (
	MaxCurrencyGainPerSync  = 50_000
	MaxCurrencySpentPerSync = 50_000
	MaxXPGainPerSync        = 100_000
	MaxPrestigeGainPerSync  = 1
	MaxTokenGainPerSync     = 10
	MaxTimePlayedPerSync    = 7_200 // seconds
)

// checkDeltas compares incoming stats against the stored row and returns the
// list of exceeded limits. Values in documents are absolute, so only
// increases are suspicious.
func checkDeltas(prev model.PlayerStats, next model.PlayerStats) []string {
	var reasons []string
	if d := next.CurrencyTotal - prev.CurrencyTotal; d > MaxCurrencyGainPerSync {
		reasons = append(reasons, fmt.Sprintf("Currency gain of %d exceeds limit %d", d, MaxCurrencyGainPerSync))
	}
	if d := next.CurrencySpent - prev.CurrencySpent; d > MaxCurrencySpentPerSync {
		reasons = append(reasons, fmt.Sprintf("Currency spent of %d exceeds limit %d", d, MaxCurrencySpentPerSync))
	}
	if d := next.XPTotal - prev.XPTotal; d > MaxXPGainPerSync {
		reasons = append(reasons, fmt.Sprintf("XP gain of %d exceeds limit %d", d, MaxXPGainPerSync))
	}
	if d := next.Prestige - prev.Prestige; d > MaxPrestigeGainPerSync {
		reasons = append(reasons, fmt.Sprintf("Prestige gain of %d exceeds limit %d", d, MaxPrestigeGainPerSync))
	}
	if d := next.PermaTokens - prev.PermaTokens; d > MaxTokenGainPerSync {
		reasons = append(reasons, fmt.Sprintf("Perma token gain of %d exceeds limit %d", d, MaxTokenGainPerSync))
	}
	if d := next.TimePlayed - prev.TimePlayed; d > MaxTimePlayedPerSync {
		reasons = append(reasons, fmt.Sprintf("Time played gain of %ds exceeds limit %ds", d, MaxTimePlayedPerSync))
	}
	return reasons
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
