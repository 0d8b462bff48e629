package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/playersync/internal/api"
	"github.com/udisondev/playersync/internal/config"
	"github.com/udisondev/playersync/internal/connector"
	"github.com/udisondev/playersync/internal/db"
	"github.com/udisondev/playersync/internal/engine"
	"github.com/udisondev/playersync/internal/registry"
)

const ConfigPath = "config/syncserver.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	// .env is optional; environment always wins over the YAML file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "err", err)
	}

	slog.Info("player sync server starting")

	cfgPath := ConfigPath
	if p := os.Getenv("PLAYERSYNC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.Info("config loaded",
		"bind", cfg.BindAddress, "port", cfg.Port,
		"wsListen", cfg.WSListenEnabled, "gameServers", len(cfg.GameServers))

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, database); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	store := db.NewStore(database)
	reg := registry.New(db.NewServerRepository(database.Pool()), store.Players())
	eng := engine.New(store)

	g, gctx := errgroup.WithContext(ctx)

	httpAddr := net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port))
	httpServer := api.New(httpAddr, cfg.SyncAPIKey, eng, store, reg)
	g.Go(func() error {
		if err := httpServer.Run(gctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	conn := connector.New(&cfg, eng, reg)
	g.Go(func() error {
		if err := conn.Run(gctx); err != nil {
			return fmt.Errorf("connector: %w", err)
		}
		return nil
	})

	if cfg.WSListenEnabled {
		wsAddr := net.JoinHostPort(cfg.WSListenHost, strconv.Itoa(cfg.WSListenPort))
		listener := connector.NewListener(wsAddr, eng, reg)
		g.Go(func() error {
			if err := listener.Run(gctx); err != nil {
				return fmt.Errorf("ws listener: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return auditRetentionLoop(gctx, store, cfg.AuditRetention, cfg.AuditSweepInterval)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// auditRetentionLoop deletes unflagged audit entries older than the retention
// window. Flagged entries are kept indefinitely.
func auditRetentionLoop(ctx context.Context, store *db.Store, retention, interval time.Duration) error {
	if retention <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			deleted, err := store.Audit().DeleteOlderThan(ctx, cutoff)
			if err != nil {
				slog.Error("audit retention sweep failed", "err", err)
				continue
			}
			if deleted > 0 {
				slog.Info("audit retention sweep", "deleted", deleted, "cutoff", cutoff.UTC().Format(time.RFC3339))
			}
		}
	}
}
