// Package config defines the service configuration and validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DCABOT_* environment
// variables.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Router    RouterConfig    `toml:"router"`
	Chain     ChainConfig     `toml:"chain"`
	Wallet    WalletConfig    `toml:"wallet"`
	Engine    EngineConfig    `toml:"engine"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters. An empty Host with
// an empty DSN selects the in-memory store, useful for development.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether a PostgreSQL endpoint is configured.
func (c DatabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" || c.Host != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr selects the
// in-process lock manager and disables the caches.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the history
// archive. An empty Bucket disables archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	Prefix         string `toml:"prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RouterConfig holds the swap-routing aggregator endpoint.
type RouterConfig struct {
	BaseURL  string   `toml:"base_url"`
	APIKey   string   `toml:"api_key"`
	QuoteTTL duration `toml:"quote_ttl"`
}

// ChainConfig holds the EVM JSON-RPC endpoint and vault contract address.
// An empty RPCURL disables the vault reporting path.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	VaultAddress string `toml:"vault_address"`
}

// WalletConfig holds the custodial key-sealing master password.
type WalletConfig struct {
	MasterPassword string `toml:"master_password"`
}

// EngineConfig holds position lifecycle parameters.
type EngineConfig struct {
	YieldAPYBps int `toml:"yield_apy_bps"`
}

// SchedulerConfig holds the sweep cadences and archive retention.
type SchedulerConfig struct {
	ExecuteInterval      duration `toml:"execute_interval"`
	YieldInterval        duration `toml:"yield_interval"`
	VaultInterval        duration `toml:"vault_interval"`
	ArchiveInterval      duration `toml:"archive_interval"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	VaultSnapshotTTL     duration `toml:"vault_snapshot_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration for TOML decoding of strings like "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, matching a local development
// setup: in-memory store, no redis, no chain, keeper and server both on.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Port:          5432,
			Database:      "dcabot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Router: RouterConfig{
			QuoteTTL: duration{30 * time.Second},
		},
		Engine: EngineConfig{
			YieldAPYBps: 1200,
		},
		Scheduler: SchedulerConfig{
			ExecuteInterval:      duration{5 * time.Minute},
			YieldInterval:        duration{30 * time.Minute},
			VaultInterval:        duration{time.Hour},
			ArchiveInterval:      duration{24 * time.Hour},
			ArchiveRetentionDays: 90,
			VaultSnapshotTTL:     duration{4 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"keeper": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Router.BaseURL == "" {
		errs = append(errs, "router: base_url must not be empty")
	}
	if c.Router.QuoteTTL.Duration < 0 {
		errs = append(errs, "router: quote_ttl must not be negative")
	}

	if c.Database.Enabled() && strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Bucket != "" {
		if c.S3.Region == "" {
			errs = append(errs, "s3: region is required when a bucket is configured")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, "s3: access_key and secret_key are required when a bucket is configured")
		}
	}

	if c.Chain.RPCURL != "" && c.Chain.VaultAddress == "" {
		errs = append(errs, "chain: vault_address is required when rpc_url is set")
	}

	if c.Engine.YieldAPYBps < 0 {
		errs = append(errs, "engine: yield_apy_bps must not be negative")
	}

	if c.Scheduler.ExecuteInterval.Duration <= 0 {
		errs = append(errs, "scheduler: execute_interval must be positive")
	}
	if c.Scheduler.YieldInterval.Duration <= 0 {
		errs = append(errs, "scheduler: yield_interval must be positive")
	}
	if c.Scheduler.ArchiveRetentionDays < 1 {
		errs = append(errs, "scheduler: archive_retention_days must be >= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
