package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/model"
)

// Store is the production engine.Store: it decomposes and recomposes player
// documents across the relational tables under a single pgx transaction.
type Store struct {
	db       *DB
	players  *PlayerRepository
	stats    *StatsRepository
	loadout  *LoadoutRepository
	tracking *TrackingRepository
	audit    *AuditRepository
	discord  *DiscordRepository
}

// NewStore wires the repositories over one pool.
func NewStore(database *DB) *Store {
	pool := database.Pool()
	return &Store{
		db:       database,
		players:  NewPlayerRepository(pool),
		stats:    NewStatsRepository(pool),
		loadout:  NewLoadoutRepository(pool),
		tracking: NewTrackingRepository(pool),
		audit:    NewAuditRepository(pool),
		discord:  NewDiscordRepository(pool),
	}
}

// Players exposes the player repository for pool-level reads (registry
// sweeps, HTTP status lookups).
func (s *Store) Players() *PlayerRepository { return s.players }

// Audit exposes the audit repository for retention and operator reads.
func (s *Store) Audit() *AuditRepository { return s.audit }

// Discord exposes the Discord link repository for operator tooling.
func (s *Store) Discord() *DiscordRepository { return s.discord }

// WithTx runs fn inside one transaction. Either every write commits or none.
func (s *Store) WithTx(ctx context.Context, fn func(tx engine.Tx) error) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "err", err)
		}
	}()

	if err := fn(&storeTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// storeTx adapts one pgx transaction to engine.Tx by delegating to the
// repositories' Tx variants.
type storeTx struct {
	store *Store
	tx    pgx.Tx
}

func (t *storeTx) GetPlayer(ctx context.Context, steamID string) (*model.Player, error) {
	return t.store.players.GetTx(ctx, t.tx, steamID)
}

func (t *storeTx) GetPlayerForUpdate(ctx context.Context, steamID string) (*model.Player, error) {
	return t.store.players.GetForUpdateTx(ctx, t.tx, steamID)
}

func (t *storeTx) GetOrCreatePlayer(ctx context.Context, steamID string, eosID, name *string) (*model.Player, bool, error) {
	return t.store.players.GetOrCreateTx(ctx, t.tx, steamID, eosID, name)
}

func (t *storeTx) LoadPlayerFull(ctx context.Context, steamID string) (*model.PlayerFull, error) {
	return t.store.players.LoadFullTx(ctx, t.tx, steamID)
}

func (t *storeTx) SetSession(ctx context.Context, playerID int64, serverID string, since time.Time) error {
	return t.store.players.SetSessionTx(ctx, t.tx, playerID, serverID, since)
}

func (t *storeTx) ClearSession(ctx context.Context, playerID int64) error {
	return t.store.players.ClearSessionTx(ctx, t.tx, playerID)
}

func (t *storeTx) UpdateSync(ctx context.Context, playerID int64, eosID, name *string, syncSeq int64, lastSync time.Time) error {
	return t.store.players.UpdateSyncTx(ctx, t.tx, playerID, eosID, name, syncSeq, lastSync)
}

func (t *storeTx) GetStats(ctx context.Context, playerID int64) (model.PlayerStats, error) {
	return t.store.stats.GetStatsTx(ctx, t.tx, playerID)
}

func (t *storeTx) UpsertStats(ctx context.Context, playerID int64, s model.PlayerStats) error {
	return t.store.stats.UpsertStatsTx(ctx, t.tx, playerID, s)
}

func (t *storeTx) UpsertSkins(ctx context.Context, playerID int64, sk model.PlayerSkins) error {
	return t.store.stats.UpsertSkinsTx(ctx, t.tx, playerID, sk)
}

func (t *storeTx) UpsertSupporter(ctx context.Context, playerID int64, sup *model.SupporterStatus) error {
	return t.store.stats.UpsertSupporterTx(ctx, t.tx, playerID, sup)
}

func (t *storeTx) ReplaceLoadout(ctx context.Context, playerID int64, loadout []model.LoadoutSlot) error {
	return t.store.loadout.ReplaceLoadoutTx(ctx, t.tx, playerID, loadout)
}

func (t *storeTx) ReplacePerks(ctx context.Context, playerID int64, perks []string) error {
	return t.store.loadout.ReplacePerksTx(ctx, t.tx, playerID, perks)
}

func (t *storeTx) UpsertUnlocks(ctx context.Context, playerID int64, weapons []string, now time.Time) error {
	return t.store.loadout.UpsertUnlocksTx(ctx, t.tx, playerID, weapons, now)
}

func (t *storeTx) UpsertKills(ctx context.Context, playerID int64, counters map[string]int64) error {
	return t.store.tracking.UpsertKillsTx(ctx, t.tx, playerID, counters)
}

func (t *storeTx) UpsertVehicleKills(ctx context.Context, playerID int64, counters map[string]int64) error {
	return t.store.tracking.UpsertVehicleKillsTx(ctx, t.tx, playerID, counters)
}

func (t *storeTx) UpsertPurchases(ctx context.Context, playerID int64, counters map[string]int64) error {
	return t.store.tracking.UpsertPurchasesTx(ctx, t.tx, playerID, counters)
}

func (t *storeTx) UpsertWeaponXP(ctx context.Context, playerID int64, counters map[string]int64) error {
	return t.store.tracking.UpsertWeaponXPTx(ctx, t.tx, playerID, counters)
}

func (t *storeTx) UpsertRewards(ctx context.Context, playerID int64, counters map[string]int64) error {
	return t.store.tracking.UpsertRewardsTx(ctx, t.tx, playerID, counters)
}

func (t *storeTx) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	return t.store.audit.AppendTx(ctx, t.tx, e)
}
