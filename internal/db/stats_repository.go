package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/playersync/internal/model"
)

// StatsRepository manages the 1:1 side tables: stats, skins, supporter.
type StatsRepository struct {
	db *pgxpool.Pool
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

// UpsertStatsTx writes the full stats row for a player.
func (r *StatsRepository) UpsertStatsTx(ctx context.Context, tx pgx.Tx, playerID int64, s model.PlayerStats) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO player_stats (
			player_id, currency, currency_total, currency_spent, xp, xp_total,
			prestige, perma_tokens, daily_claims, games_played, time_played,
			join_time, daily_claim_time
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (player_id) DO UPDATE SET
			currency = EXCLUDED.currency,
			currency_total = EXCLUDED.currency_total,
			currency_spent = EXCLUDED.currency_spent,
			xp = EXCLUDED.xp,
			xp_total = EXCLUDED.xp_total,
			prestige = EXCLUDED.prestige,
			perma_tokens = EXCLUDED.perma_tokens,
			daily_claims = EXCLUDED.daily_claims,
			games_played = EXCLUDED.games_played,
			time_played = EXCLUDED.time_played,
			join_time = EXCLUDED.join_time,
			daily_claim_time = EXCLUDED.daily_claim_time`,
		playerID, s.Currency, s.CurrencyTotal, s.CurrencySpent, s.XP, s.XPTotal,
		s.Prestige, s.PermaTokens, s.DailyClaims, s.GamesPlayed, s.TimePlayed,
		s.JoinTime, s.DailyClaimTime,
	)
	if err != nil {
		return fmt.Errorf("upserting stats for player %d: %w", playerID, err)
	}
	return nil
}

// GetStatsTx loads the stats row for a player. Returns the zero value when
// the row is missing (fresh player).
func (r *StatsRepository) GetStatsTx(ctx context.Context, tx pgx.Tx, playerID int64) (model.PlayerStats, error) {
	var s model.PlayerStats
	err := tx.QueryRow(ctx,
		`SELECT currency, currency_total, currency_spent, xp, xp_total,
		        prestige, perma_tokens, daily_claims, games_played, time_played,
		        join_time, daily_claim_time
		 FROM player_stats WHERE player_id = $1`, playerID,
	).Scan(&s.Currency, &s.CurrencyTotal, &s.CurrencySpent, &s.XP, &s.XPTotal,
		&s.Prestige, &s.PermaTokens, &s.DailyClaims, &s.GamesPlayed,
		&s.TimePlayed, &s.JoinTime, &s.DailyClaimTime)
	if err != nil && err != pgx.ErrNoRows {
		return s, fmt.Errorf("querying stats for player %d: %w", playerID, err)
	}
	return s, nil
}

// UpsertSkinsTx writes the skins row for a player.
func (r *StatsRepository) UpsertSkinsTx(ctx context.Context, tx pgx.Tx, playerID int64, sk model.PlayerSkins) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO player_skins (player_id, indfor, blufor, redfor)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (player_id) DO UPDATE SET
			indfor = EXCLUDED.indfor,
			blufor = EXCLUDED.blufor,
			redfor = EXCLUDED.redfor`,
		playerID, sk.Indfor, sk.Blufor, sk.Redfor,
	)
	if err != nil {
		return fmt.Errorf("upserting skins for player %d: %w", playerID, err)
	}
	return nil
}

// UpsertSupporterTx writes the supporter status row. A nil status is a no-op:
// documents without a supporter section leave the stored tier untouched.
func (r *StatsRepository) UpsertSupporterTx(ctx context.Context, tx pgx.Tx, playerID int64, sup *model.SupporterStatus) error {
	if sup == nil {
		return nil
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO supporter_status (player_id, tier, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (player_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			expires_at = EXCLUDED.expires_at`,
		playerID, sup.Tier, sup.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting supporter status for player %d: %w", playerID, err)
	}
	return nil
}
