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

const serverColumns = `id, server_id, api_token, active, flagged, flag_reason, last_seen, created_at`

// ServerRepository manages the game_servers table.
type ServerRepository struct {
	db *pgxpool.Pool
}

// NewServerRepository creates a new ServerRepository.
func NewServerRepository(db *pgxpool.Pool) *ServerRepository {
	return &ServerRepository{db: db}
}

func scanServer(row pgx.Row) (*model.GameServer, error) {
	var s model.GameServer
	err := row.Scan(&s.ID, &s.ServerID, &s.Token, &s.Active, &s.Flagged,
		&s.FlagReason, &s.LastSeen, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByToken looks up a server record by its API token.
// Returns nil, nil if no server holds the token.
func (r *ServerRepository) GetByToken(ctx context.Context, token string) (*model.GameServer, error) {
	s, err := scanServer(r.db.QueryRow(ctx,
		`SELECT `+serverColumns+` FROM game_servers WHERE api_token = $1`, token))
	if err != nil {
		return nil, fmt.Errorf("querying server by token: %w", err)
	}
	return s, nil
}

// GetByServerID looks up a server record by its public id.
func (r *ServerRepository) GetByServerID(ctx context.Context, serverID string) (*model.GameServer, error) {
	s, err := scanServer(r.db.QueryRow(ctx,
		`SELECT `+serverColumns+` FROM game_servers WHERE server_id = $1`, serverID))
	if err != nil {
		return nil, fmt.Errorf("querying server %s: %w", serverID, err)
	}
	return s, nil
}

// Create registers a new game server with the given token.
func (r *ServerRepository) Create(ctx context.Context, serverID, token string) (*model.GameServer, error) {
	s, err := scanServer(r.db.QueryRow(ctx,
		`INSERT INTO game_servers (server_id, api_token)
		 VALUES ($1, $2)
		 RETURNING `+serverColumns, serverID, token))
	if err != nil {
		return nil, fmt.Errorf("creating server %s: %w", serverID, err)
	}
	return s, nil
}

// TouchLastSeen bumps last_seen for the server.
func (r *ServerRepository) TouchLastSeen(ctx context.Context, serverID string, now time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_servers SET last_seen = $2 WHERE server_id = $1`,
		serverID, now,
	)
	if err != nil {
		return fmt.Errorf("touching last seen for server %s: %w", serverID, err)
	}
	return nil
}

// SetActive enables or disables a server for authentication.
func (r *ServerRepository) SetActive(ctx context.Context, serverID string, active bool) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_servers SET active = $2 WHERE server_id = $1`,
		serverID, active,
	)
	if err != nil {
		return fmt.Errorf("setting active for server %s: %w", serverID, err)
	}
	return nil
}

// SetFlagged marks a server for operator review. Flagged servers keep
// syncing; the flag is advisory.
func (r *ServerRepository) SetFlagged(ctx context.Context, serverID string, flagged bool, reason string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE game_servers SET flagged = $2, flag_reason = $3 WHERE server_id = $1`,
		serverID, flagged, reason,
	)
	if err != nil {
		return fmt.Errorf("setting flag for server %s: %w", serverID, err)
	}
	return nil
}
