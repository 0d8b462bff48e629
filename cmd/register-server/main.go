// Command register-server creates a game server record and prints its API
// token. Operator tooling; the token is shown only once.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/udisondev/playersync/internal/config"
	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/registry"
)

func main() {
	serverID := flag.String("server-id", "", "unique id of the game server to register")
	cfgPath := flag.String("config", "config/syncserver.yaml", "path to the config file")
	flag.Parse()

	if *serverID == "" {
		fmt.Fprintln(os.Stderr, "usage: register-server -server-id <id> [-config <path>]")
		os.Exit(2)
	}

	if err := run(context.Background(), *serverID, *cfgPath); err != nil {
		slog.Error("register-server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, serverID, cfgPath string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "err", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(ctx, database); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	reg := registry.New(db.NewServerRepository(database.Pool()), db.NewPlayerRepository(database.Pool()))
	srv, err := reg.RegisterServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("registering server: %w", err)
	}

	fmt.Printf("serverId: %s\ntoken:    %s\n", srv.ServerID, srv.Token)
	return nil
}
