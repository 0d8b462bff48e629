package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/playersync/internal/model"
)

// DiscordRepository manages the Discord account links of players. Links are
// written by operator tooling, never by the sync pipeline.
type DiscordRepository struct {
	pool *pgxpool.Pool
}

// NewDiscordRepository creates a DiscordRepository.
func NewDiscordRepository(pool *pgxpool.Pool) *DiscordRepository {
	return &DiscordRepository{pool: pool}
}

// Link attaches a Discord id to the player with the given steam id. Linking
// the same pair again is a no-op that keeps the original verified state.
func (r *DiscordRepository) Link(ctx context.Context, steamID, discordID string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO discord_links (player_id, discord_id)
		SELECT id, $2 FROM players WHERE steam_id = $1
		ON CONFLICT (player_id, discord_id) DO NOTHING`,
		steamID, discordID)
	if err != nil {
		return fmt.Errorf("linking discord id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the player does not exist or the link already does; resolve
		// which so the caller can answer 404 correctly.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM players WHERE steam_id = $1)`, steamID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking player for discord link: %w", err)
		}
		if !exists {
			return fmt.Errorf("linking discord id: player %s not found", steamID)
		}
	}
	return nil
}

// SetVerified marks a link verified or not.
func (r *DiscordRepository) SetVerified(ctx context.Context, steamID, discordID string, verified bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE discord_links SET verified = $3
		WHERE discord_id = $2
		  AND player_id = (SELECT id FROM players WHERE steam_id = $1)`,
		steamID, discordID, verified)
	if err != nil {
		return fmt.Errorf("updating discord link: %w", err)
	}
	return nil
}

// ForPlayer returns all Discord links of the player, newest first.
func (r *DiscordRepository) ForPlayer(ctx context.Context, steamID string) ([]model.DiscordLink, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT dl.discord_id, dl.verified, dl.created_at
		FROM discord_links dl
		JOIN players p ON p.id = dl.player_id
		WHERE p.steam_id = $1
		ORDER BY dl.created_at DESC`,
		steamID)
	if err != nil {
		return nil, fmt.Errorf("querying discord links: %w", err)
	}
	defer rows.Close()

	var links []model.DiscordLink
	for rows.Next() {
		var l model.DiscordLink
		if err := rows.Scan(&l.DiscordID, &l.Verified, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning discord link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
