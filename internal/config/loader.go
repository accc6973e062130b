package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DCABOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults plus
// environment are used instead. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("decode config %s: %w", path, err)
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides maps DCABOT_* environment variables onto the config.
// Secrets in particular are expected to arrive this way rather than in the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "DCABOT_MODE")
	setStr(&cfg.LogLevel, "DCABOT_LOG_LEVEL")

	setStr(&cfg.Database.DSN, "DCABOT_DATABASE_DSN")
	setStr(&cfg.Database.Host, "DCABOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "DCABOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "DCABOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "DCABOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "DCABOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "DCABOT_DATABASE_SSL_MODE")
	setBool(&cfg.Database.RunMigrations, "DCABOT_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "DCABOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DCABOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DCABOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "DCABOT_REDIS_TLS")

	setStr(&cfg.S3.Endpoint, "DCABOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DCABOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "DCABOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DCABOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DCABOT_S3_SECRET_KEY")
	setStr(&cfg.S3.Prefix, "DCABOT_S3_PREFIX")

	setStr(&cfg.Router.BaseURL, "DCABOT_ROUTER_BASE_URL")
	setStr(&cfg.Router.APIKey, "DCABOT_ROUTER_API_KEY")
	setDuration(&cfg.Router.QuoteTTL, "DCABOT_ROUTER_QUOTE_TTL")

	setStr(&cfg.Chain.RPCURL, "DCABOT_CHAIN_RPC_URL")
	setStr(&cfg.Chain.VaultAddress, "DCABOT_CHAIN_VAULT_ADDRESS")

	setStr(&cfg.Wallet.MasterPassword, "DCABOT_WALLET_MASTER_PASSWORD")

	setInt(&cfg.Engine.YieldAPYBps, "DCABOT_ENGINE_YIELD_APY_BPS")

	setDuration(&cfg.Scheduler.ExecuteInterval, "DCABOT_SCHEDULER_EXECUTE_INTERVAL")
	setDuration(&cfg.Scheduler.YieldInterval, "DCABOT_SCHEDULER_YIELD_INTERVAL")
	setDuration(&cfg.Scheduler.VaultInterval, "DCABOT_SCHEDULER_VAULT_INTERVAL")
	setDuration(&cfg.Scheduler.ArchiveInterval, "DCABOT_SCHEDULER_ARCHIVE_INTERVAL")
	setInt(&cfg.Scheduler.ArchiveRetentionDays, "DCABOT_SCHEDULER_ARCHIVE_RETENTION_DAYS")

	setBool(&cfg.Server.Enabled, "DCABOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DCABOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "DCABOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "DCABOT_SERVER_CORS_ORIGINS")

	setStr(&cfg.Notify.TelegramToken, "DCABOT_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "DCABOT_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "DCABOT_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "DCABOT_NOTIFY_EVENTS")
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
