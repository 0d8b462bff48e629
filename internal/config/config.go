package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the sync service.
type Config struct {
	// HTTP surface
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Inbound WebSocket listener (reverse orientation, optional)
	WSListenEnabled bool   `yaml:"ws_listen_enabled"`
	WSListenHost    string `yaml:"ws_listen_host"`
	WSListenPort    int    `yaml:"ws_listen_port"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// Shared secret for the HTTP surface (X-API-Key)
	SyncAPIKey string `yaml:"sync_api_key"`

	// Game servers the connector dials
	GameServers []GameServerEntry `yaml:"game_servers"`

	// Reconnect behaviour for outbound connections
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Per-request wait on a game-server response
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Audit retention
	AuditRetention     time.Duration `yaml:"audit_retention"`
	AuditSweepInterval time.Duration `yaml:"audit_sweep_interval"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
	if d.MaxConns > 0 {
		dsn += fmt.Sprintf("&pool_max_conns=%d", d.MaxConns)
	}
	return dsn
}

// GameServerEntry is one game server the connector dials.
type GameServerEntry struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ReconnectConfig shapes the exponential back-off of outbound connections.
// Attempts <= 0 means retry forever.
type ReconnectConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	DelayMax time.Duration `yaml:"delay_max"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		BindAddress:     "0.0.0.0",
		Port:            8080,
		WSListenEnabled: false,
		WSListenHost:    "0.0.0.0",
		WSListenPort:    8081,
		RequestTimeout:  10 * time.Second,
		Reconnect: ReconnectConfig{
			Attempts: 0,
			Delay:    time.Second,
			DelayMax: 30 * time.Second,
			Timeout:  10 * time.Second,
		},
		AuditRetention:     30 * 24 * time.Hour,
		AuditSweepInterval: time.Hour,
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "playersync",
			Password: "playersync",
			DBName:   "playersync",
			SSLMode:  "disable",
			MaxConns: 10,
		},
	}
}

// Load loads config from a YAML file and applies environment overrides.
// If the file doesn't exist, defaults plus environment are used.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays recognized environment variables onto cfg.
func (c *Config) applyEnv() error {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing DB_PORT %q: %w", v, err)
		}
		c.Database.Port = p
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		c.Database.SSLMode = v
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing DB_MAX_CONNS %q: %w", v, err)
		}
		c.Database.MaxConns = n
	}
	if v := os.Getenv("SYNC_API_KEY"); v != "" {
		c.SyncAPIKey = v
	}
	if v := os.Getenv("GAME_SERVERS"); v != "" {
		entries, err := ParseGameServers(v)
		if err != nil {
			return err
		}
		c.GameServers = entries
	}
	if v := os.Getenv("GAME_SERVER_RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing GAME_SERVER_RECONNECT_ATTEMPTS %q: %w", v, err)
		}
		c.Reconnect.Attempts = n
	}
	if v := os.Getenv("GAME_SERVER_RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing GAME_SERVER_RECONNECT_DELAY %q: %w", v, err)
		}
		c.Reconnect.Delay = d
	}
	if v := os.Getenv("GAME_SERVER_RECONNECT_DELAY_MAX"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing GAME_SERVER_RECONNECT_DELAY_MAX %q: %w", v, err)
		}
		c.Reconnect.DelayMax = d
	}
	if v := os.Getenv("GAME_SERVER_RECONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing GAME_SERVER_RECONNECT_TIMEOUT %q: %w", v, err)
		}
		c.Reconnect.Timeout = d
	}
	return nil
}

// ParseGameServers parses the GAME_SERVERS env format: comma-separated
// "url|token" pairs.
func ParseGameServers(s string) ([]GameServerEntry, error) {
	parts := strings.Split(s, ",")
	entries := make([]GameServerEntry, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		url, token, ok := strings.Cut(part, "|")
		if !ok || url == "" || token == "" {
			return nil, fmt.Errorf("parsing GAME_SERVERS entry %q: want url|token", part)
		}
		entries = append(entries, GameServerEntry{URL: url, Token: token})
	}
	return entries, nil
}
