package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrackingRepository manages the five open-keyed counter tables. Document
// values are absolute counters; the newest value wins.
type TrackingRepository struct {
	db *pgxpool.Pool
}

// NewTrackingRepository creates a new TrackingRepository.
func NewTrackingRepository(db *pgxpool.Pool) *TrackingRepository {
	return &TrackingRepository{db: db}
}

func (r *TrackingRepository) upsertCounters(ctx context.Context, tx pgx.Tx, query string, playerID int64, counters map[string]int64) error {
	if len(counters) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for key, val := range counters {
		batch.Queue(query, playerID, key, val)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range counters {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertKillsTx stores kill counters keyed by victim steam id.
func (r *TrackingRepository) UpsertKillsTx(ctx context.Context, tx pgx.Tx, playerID int64, kills map[string]int64) error {
	err := r.upsertCounters(ctx, tx,
		`INSERT INTO kills (player_id, victim_steam_id, count) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, victim_steam_id) DO UPDATE SET count = EXCLUDED.count`,
		playerID, kills)
	if err != nil {
		return fmt.Errorf("upserting kills for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertVehicleKillsTx stores vehicle kill counters keyed by vehicle name.
func (r *TrackingRepository) UpsertVehicleKillsTx(ctx context.Context, tx pgx.Tx, playerID int64, kills map[string]int64) error {
	err := r.upsertCounters(ctx, tx,
		`INSERT INTO vehicle_kills (player_id, vehicle_name, count) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, vehicle_name) DO UPDATE SET count = EXCLUDED.count`,
		playerID, kills)
	if err != nil {
		return fmt.Errorf("upserting vehicle kills for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertPurchasesTx stores purchase counters keyed by item name.
func (r *TrackingRepository) UpsertPurchasesTx(ctx context.Context, tx pgx.Tx, playerID int64, purchases map[string]int64) error {
	err := r.upsertCounters(ctx, tx,
		`INSERT INTO purchases (player_id, item_name, count) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, item_name) DO UPDATE SET count = EXCLUDED.count`,
		playerID, purchases)
	if err != nil {
		return fmt.Errorf("upserting purchases for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertWeaponXPTx stores weapon xp keyed by weapon name.
func (r *TrackingRepository) UpsertWeaponXPTx(ctx context.Context, tx pgx.Tx, playerID int64, xp map[string]int64) error {
	err := r.upsertCounters(ctx, tx,
		`INSERT INTO weapon_xp (player_id, weapon_name, xp) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, weapon_name) DO UPDATE SET xp = EXCLUDED.xp`,
		playerID, xp)
	if err != nil {
		return fmt.Errorf("upserting weapon xp for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertRewardsTx stores reward counters keyed by reward type.
func (r *TrackingRepository) UpsertRewardsTx(ctx context.Context, tx pgx.Tx, playerID int64, rewards map[string]int64) error {
	err := r.upsertCounters(ctx, tx,
		`INSERT INTO rewards (player_id, reward_type, count) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, reward_type) DO UPDATE SET count = EXCLUDED.count`,
		playerID, rewards)
	if err != nil {
		return fmt.Errorf("upserting rewards for player %d: %w", playerID, err)
	}
	return nil
}
