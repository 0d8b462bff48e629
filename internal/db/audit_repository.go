package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/udisondev/playersync/internal/model"
)

// AuditRepository manages the append-only audit_log table.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// AppendTx inserts an audit entry in the same transaction as the sync it
// describes, so insertion order matches commit order.
func (r *AuditRepository) AppendTx(ctx context.Context, tx pgx.Tx, e *model.AuditEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO audit_log (
			server_id, player_steam_id, kind, seq_before, seq_after,
			before_summary, after_summary, flagged, flag_reason, duration_ms
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ServerID, e.PlayerSteamID, string(e.Kind), e.SeqBefore, e.SeqAfter,
		e.Before, e.After, e.Flagged, e.FlagReason, e.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry for %s: %w", e.PlayerSteamID, err)
	}
	return nil
}

// DeleteOlderThan removes unflagged entries older than cutoff. Flagged
// entries are exempt from retention.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < $1 AND NOT flagged`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting audit entries before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// RecentForPlayer returns the newest entries for a player, newest first.
func (r *AuditRepository) RecentForPlayer(ctx context.Context, steamID string, limit int) ([]model.AuditEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, server_id, player_steam_id, kind, seq_before, seq_after,
		        before_summary, after_summary, flagged, flag_reason, duration_ms, created_at
		 FROM audit_log WHERE player_steam_id = $1
		 ORDER BY id DESC LIMIT $2`, steamID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries for %s: %w", steamID, err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// Flagged returns the newest flagged entries across all players.
func (r *AuditRepository) Flagged(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, server_id, player_steam_id, kind, seq_before, seq_after,
		        before_summary, after_summary, flagged, flag_reason, duration_ms, created_at
		 FROM audit_log WHERE flagged
		 ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying flagged audit entries: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

func scanAuditRows(rows pgx.Rows) ([]model.AuditEntry, error) {
	entries := make([]model.AuditEntry, 0, 16)
	for rows.Next() {
		var e model.AuditEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.ServerID, &e.PlayerSteamID, &kind,
			&e.SeqBefore, &e.SeqAfter, &e.Before, &e.After,
			&e.Flagged, &e.FlagReason, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		e.Kind = model.AuditKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
