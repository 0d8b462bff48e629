package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/udisondev/playersync/internal/db/migrations"
)

// RunMigrations applies the embedded goose migrations over the DB's pool
// config. goose wants a *sql.DB, so the pool's connection config is
// registered with the stdlib driver.
func RunMigrations(ctx context.Context, database *DB) error {
	connStr := stdlib.RegisterConnConfig(database.Pool().Config().ConnConfig)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
