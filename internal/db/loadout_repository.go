package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/playersync/internal/model"
)

// LoadoutRepository manages loadout slots, perks and permanent unlocks.
// Loadout and perks use replace semantics; unlocks are additive.
type LoadoutRepository struct {
	db *pgxpool.Pool
}

// NewLoadoutRepository creates a new LoadoutRepository.
func NewLoadoutRepository(db *pgxpool.Pool) *LoadoutRepository {
	return &LoadoutRepository{db: db}
}

// ReplaceLoadoutTx deletes all loadout rows for the player and inserts the
// new set in document order.
func (r *LoadoutRepository) ReplaceLoadoutTx(ctx context.Context, tx pgx.Tx, playerID int64, loadout []model.LoadoutSlot) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM loadout_slots WHERE player_id = $1`, playerID); err != nil {
		return fmt.Errorf("deleting loadout for player %d: %w", playerID, err)
	}
	if len(loadout) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(loadout))
	for _, s := range loadout {
		rows = append(rows, []any{playerID, s.Slot, s.Family, s.Item, s.Count})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"loadout_slots"},
		[]string{"player_id", "slot", "family", "item", "count"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting loadout for player %d: %w", playerID, err)
	}
	return nil
}

// ReplacePerksTx deletes all perk rows for the player and inserts the new set.
func (r *LoadoutRepository) ReplacePerksTx(ctx context.Context, tx pgx.Tx, playerID int64, perks []string) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM player_perks WHERE player_id = $1`, playerID); err != nil {
		return fmt.Errorf("deleting perks for player %d: %w", playerID, err)
	}
	if len(perks) == 0 {
		return nil
	}

	// Documents may repeat a perk; the table key forbids duplicates.
	seen := make(map[string]struct{}, len(perks))
	rows := make([][]any, 0, len(perks))
	for _, perk := range perks {
		if _, ok := seen[perk]; ok {
			continue
		}
		seen[perk] = struct{}{}
		rows = append(rows, []any{playerID, perk})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"player_perks"},
		[]string{"player_id", "perk_name"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting perks for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertUnlocksTx adds permanent unlocks. Existing rows keep their original
// unlock timestamp.
func (r *LoadoutRepository) UpsertUnlocksTx(ctx context.Context, tx pgx.Tx, playerID int64, weapons []string, now time.Time) error {
	if len(weapons) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, weapon := range weapons {
		batch.Queue(
			`INSERT INTO permanent_unlocks (player_id, weapon_name, unlocked_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (player_id, weapon_name) DO NOTHING`,
			playerID, weapon, now,
		)
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range weapons {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting unlocks for player %d: %w", playerID, err)
		}
	}
	return nil
}
