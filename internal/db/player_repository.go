package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/playersync/internal/model"
)

const playerColumns = `id, steam_id, eos_id, name, sync_seq, active_server_id, active_since, last_sync, created_at`

// PlayerRepository manages the players table.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a new PlayerRepository.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var p model.Player
	err := row.Scan(&p.ID, &p.SteamID, &p.EOSID, &p.Name, &p.SyncSeq,
		&p.ActiveServerID, &p.ActiveSince, &p.LastSync, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTx loads a player by steam id. Returns nil, nil if not found.
func (r *PlayerRepository) GetTx(ctx context.Context, tx pgx.Tx, steamID string) (*model.Player, error) {
	p, err := scanPlayer(tx.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE steam_id = $1`, steamID))
	if err != nil {
		return nil, fmt.Errorf("querying player %s: %w", steamID, err)
	}
	return p, nil
}

// GetForUpdateTx loads a player by steam id taking the row lock, serializing
// concurrent syncs for the same player.
func (r *PlayerRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, steamID string) (*model.Player, error) {
	p, err := scanPlayer(tx.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE steam_id = $1 FOR UPDATE`, steamID))
	if err != nil {
		return nil, fmt.Errorf("querying player %s for update: %w", steamID, err)
	}
	return p, nil
}

// GetOrCreateTx atomically finds or creates a player. A created player starts
// with sync_seq 0 plus default stats and skins rows. Uses INSERT ... ON
// CONFLICT DO NOTHING so two racing connects cannot both create.
func (r *PlayerRepository) GetOrCreateTx(ctx context.Context, tx pgx.Tx, steamID string, eosID, name *string) (*model.Player, bool, error) {
	tag, err := tx.Exec(ctx,
		`INSERT INTO players (steam_id, eos_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (steam_id) DO NOTHING`,
		steamID, eosID, name,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting player %s: %w", steamID, err)
	}
	created := tag.RowsAffected() > 0

	p, err := r.GetForUpdateTx(ctx, tx, steamID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, fmt.Errorf("player %s not found after insert", steamID)
	}

	if created {
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_stats (player_id) VALUES ($1)`, p.ID); err != nil {
			return nil, false, fmt.Errorf("creating default stats for player %s: %w", steamID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_skins (player_id) VALUES ($1)`, p.ID); err != nil {
			return nil, false, fmt.Errorf("creating default skins for player %s: %w", steamID, err)
		}
	}

	return p, created, nil
}

// SetSessionTx pins the player to a server, claiming the session lock.
func (r *PlayerRepository) SetSessionTx(ctx context.Context, tx pgx.Tx, playerID int64, serverID string, since time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE players SET active_server_id = $2, active_since = $3 WHERE id = $1`,
		playerID, serverID, since,
	)
	if err != nil {
		return fmt.Errorf("setting session for player %d: %w", playerID, err)
	}
	return nil
}

// ClearSessionTx releases the session lock.
func (r *PlayerRepository) ClearSessionTx(ctx context.Context, tx pgx.Tx, playerID int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE players SET active_server_id = NULL, active_since = NULL WHERE id = $1`,
		playerID,
	)
	if err != nil {
		return fmt.Errorf("clearing session for player %d: %w", playerID, err)
	}
	return nil
}

// UpdateSyncTx bumps sync_seq and last_sync, and refreshes the optional
// identity fields when the document carries them.
func (r *PlayerRepository) UpdateSyncTx(ctx context.Context, tx pgx.Tx, playerID int64, eosID, name *string, syncSeq int64, lastSync time.Time) error {
	_, err := tx.Exec(ctx,
		`UPDATE players
		 SET eos_id = COALESCE($2, eos_id),
		     name = COALESCE($3, name),
		     sync_seq = $4,
		     last_sync = $5
		 WHERE id = $1`,
		playerID, eosID, name, syncSeq, lastSync,
	)
	if err != nil {
		return fmt.Errorf("updating sync state for player %d: %w", playerID, err)
	}
	return nil
}

// SweepServer clears the session lock on every player pinned to serverID.
// Returns the number of players released.
func (r *PlayerRepository) SweepServer(ctx context.Context, serverID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE players SET active_server_id = NULL, active_since = NULL
		 WHERE active_server_id = $1`,
		serverID,
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping server %s: %w", serverID, err)
	}
	return tag.RowsAffected(), nil
}

// LastSync returns the last sync timestamp for a player. Returns nil, nil
// when the player is unknown, nil timestamp when never synced.
func (r *PlayerRepository) LastSync(ctx context.Context, steamID string) (*time.Time, bool, error) {
	var ts *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT last_sync FROM players WHERE steam_id = $1`, steamID,
	).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying last sync for %s: %w", steamID, err)
	}
	return ts, true, nil
}

// LoadFullTx loads a player and all associations in one consistent snapshot.
// Returns nil, nil if the player does not exist.
func (r *PlayerRepository) LoadFullTx(ctx context.Context, tx pgx.Tx, steamID string) (*model.PlayerFull, error) {
	p, err := r.GetTx(ctx, tx, steamID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	full := &model.PlayerFull{
		Player:       *p,
		Kills:        map[string]int64{},
		VehicleKills: map[string]int64{},
		Purchases:    map[string]int64{},
		WeaponXP:     map[string]int64{},
		Rewards:      map[string]int64{},
	}

	err = tx.QueryRow(ctx,
		`SELECT currency, currency_total, currency_spent, xp, xp_total,
		        prestige, perma_tokens, daily_claims, games_played, time_played,
		        join_time, daily_claim_time
		 FROM player_stats WHERE player_id = $1`, p.ID,
	).Scan(&full.Stats.Currency, &full.Stats.CurrencyTotal, &full.Stats.CurrencySpent,
		&full.Stats.XP, &full.Stats.XPTotal, &full.Stats.Prestige,
		&full.Stats.PermaTokens, &full.Stats.DailyClaims, &full.Stats.GamesPlayed,
		&full.Stats.TimePlayed, &full.Stats.JoinTime, &full.Stats.DailyClaimTime)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("querying stats for player %s: %w", steamID, err)
	}

	err = tx.QueryRow(ctx,
		`SELECT indfor, blufor, redfor FROM player_skins WHERE player_id = $1`, p.ID,
	).Scan(&full.Skins.Indfor, &full.Skins.Blufor, &full.Skins.Redfor)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("querying skins for player %s: %w", steamID, err)
	}

	var sup model.SupporterStatus
	err = tx.QueryRow(ctx,
		`SELECT tier, expires_at FROM supporter_status WHERE player_id = $1`, p.ID,
	).Scan(&sup.Tier, &sup.ExpiresAt)
	if err == nil {
		full.Supporter = &sup
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("querying supporter status for player %s: %w", steamID, err)
	}

	if full.Loadout, err = r.loadLoadout(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("loading loadout for player %s: %w", steamID, err)
	}
	if full.Perks, err = r.loadPerks(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("loading perks for player %s: %w", steamID, err)
	}
	if full.PermaUnlocks, err = r.loadUnlocks(ctx, tx, p.ID); err != nil {
		return nil, fmt.Errorf("loading permanent unlocks for player %s: %w", steamID, err)
	}

	counters := []struct {
		query string
		dst   map[string]int64
	}{
		{`SELECT victim_steam_id, count FROM kills WHERE player_id = $1`, full.Kills},
		{`SELECT vehicle_name, count FROM vehicle_kills WHERE player_id = $1`, full.VehicleKills},
		{`SELECT item_name, count FROM purchases WHERE player_id = $1`, full.Purchases},
		{`SELECT weapon_name, xp FROM weapon_xp WHERE player_id = $1`, full.WeaponXP},
		{`SELECT reward_type, count FROM rewards WHERE player_id = $1`, full.Rewards},
	}
	for _, c := range counters {
		if err := loadCounterMap(ctx, tx, c.query, p.ID, c.dst); err != nil {
			return nil, fmt.Errorf("loading tracking for player %s: %w", steamID, err)
		}
	}

	return full, nil
}

func (r *PlayerRepository) loadLoadout(ctx context.Context, tx pgx.Tx, playerID int64) ([]model.LoadoutSlot, error) {
	rows, err := tx.Query(ctx,
		`SELECT slot, family, item, count FROM loadout_slots
		 WHERE player_id = $1 ORDER BY id`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loadout := make([]model.LoadoutSlot, 0, 8)
	for rows.Next() {
		var s model.LoadoutSlot
		if err := rows.Scan(&s.Slot, &s.Family, &s.Item, &s.Count); err != nil {
			return nil, fmt.Errorf("scanning loadout row: %w", err)
		}
		loadout = append(loadout, s)
	}
	return loadout, rows.Err()
}

func (r *PlayerRepository) loadPerks(ctx context.Context, tx pgx.Tx, playerID int64) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT perk_name FROM player_perks WHERE player_id = $1 ORDER BY perk_name`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perks := make([]string, 0, 8)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning perk row: %w", err)
		}
		perks = append(perks, name)
	}
	return perks, rows.Err()
}

func (r *PlayerRepository) loadUnlocks(ctx context.Context, tx pgx.Tx, playerID int64) ([]model.PermanentUnlock, error) {
	rows, err := tx.Query(ctx,
		`SELECT weapon_name, unlocked_at FROM permanent_unlocks
		 WHERE player_id = $1 ORDER BY weapon_name`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	unlocks := make([]model.PermanentUnlock, 0, 8)
	for rows.Next() {
		var u model.PermanentUnlock
		if err := rows.Scan(&u.WeaponName, &u.UnlockedAt); err != nil {
			return nil, fmt.Errorf("scanning unlock row: %w", err)
		}
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

func loadCounterMap(ctx context.Context, tx pgx.Tx, query string, playerID int64, dst map[string]int64) error {
	rows, err := tx.Query(ctx, query, playerID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var val int64
		if err := rows.Scan(&key, &val); err != nil {
			return fmt.Errorf("scanning counter row: %w", err)
		}
		dst[key] = val
	}
	return rows.Err()
}
