package engine

import (
	"context"
	"time"

	"github.com/udisondev/playersync/internal/model"
)

// Store supplies the transaction boundary. Every mutation of one sync
// operation happens inside a single WithTx call; the store only joins the
// transaction it is handed, it never starts one on its own behalf.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// AuditSink records one audit entry. In production the sink is the
// transaction itself, so the entry commits together with the data it
// describes; tests capture entries in memory.
type AuditSink interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) error
}

// Tx is the typed set of storage primitives available inside one transaction.
type Tx interface {
	AuditSink

	GetPlayer(ctx context.Context, steamID string) (*model.Player, error)
	// GetPlayerForUpdate takes the row lock, serializing concurrent syncs
	// for the same steam id.
	GetPlayerForUpdate(ctx context.Context, steamID string) (*model.Player, error)
	GetOrCreatePlayer(ctx context.Context, steamID string, eosID, name *string) (p *model.Player, created bool, err error)
	LoadPlayerFull(ctx context.Context, steamID string) (*model.PlayerFull, error)

	SetSession(ctx context.Context, playerID int64, serverID string, since time.Time) error
	ClearSession(ctx context.Context, playerID int64) error
	UpdateSync(ctx context.Context, playerID int64, eosID, name *string, syncSeq int64, lastSync time.Time) error

	GetStats(ctx context.Context, playerID int64) (model.PlayerStats, error)
	UpsertStats(ctx context.Context, playerID int64, s model.PlayerStats) error
	UpsertSkins(ctx context.Context, playerID int64, sk model.PlayerSkins) error
	UpsertSupporter(ctx context.Context, playerID int64, sup *model.SupporterStatus) error

	ReplaceLoadout(ctx context.Context, playerID int64, loadout []model.LoadoutSlot) error
	ReplacePerks(ctx context.Context, playerID int64, perks []string) error
	UpsertUnlocks(ctx context.Context, playerID int64, weapons []string, now time.Time) error

	UpsertKills(ctx context.Context, playerID int64, counters map[string]int64) error
	UpsertVehicleKills(ctx context.Context, playerID int64, counters map[string]int64) error
	UpsertPurchases(ctx context.Context, playerID int64, counters map[string]int64) error
	UpsertWeaponXP(ctx context.Context, playerID int64, counters map[string]int64) error
	UpsertRewards(ctx context.Context, playerID int64, counters map[string]int64) error
}
