package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/h2olabs/dcabot/internal/blob/s3"
	"github.com/h2olabs/dcabot/internal/cache/redis"
	"github.com/h2olabs/dcabot/internal/config"
	"github.com/h2olabs/dcabot/internal/crypto"
	"github.com/h2olabs/dcabot/internal/domain"
	"github.com/h2olabs/dcabot/internal/notify"
	"github.com/h2olabs/dcabot/internal/platform/chain"
	"github.com/h2olabs/dcabot/internal/platform/router"
	"github.com/h2olabs/dcabot/internal/scheduler"
	"github.com/h2olabs/dcabot/internal/store/memory"
	"github.com/h2olabs/dcabot/internal/store/postgres"
	"github.com/h2olabs/dcabot/internal/wallet"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	PositionStore  domain.PositionStore
	ExecutionStore domain.ExecutionStore
	WalletStore    domain.WalletStore

	// Coordination
	LockManager domain.LockManager
	Clock       domain.Clock

	// Swap routing; wrapped in the Redis quote cache when Redis is configured.
	Router domain.RouterClient

	// Vault reporting. Both are nil when no chain endpoint is configured;
	// VaultCache is additionally nil without Redis.
	Vault      domain.VaultClient
	VaultCache *redis.VaultCache

	// History archival; nil when no bucket is configured.
	HistoryWriter scheduler.HistoryWriter

	// Custodial wallets; nil when no master password is configured.
	WalletService *wallet.Service

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Clock: domain.SystemClock{}}

	// --- Persistence: PostgreSQL when configured, in-memory otherwise ---
	if cfg.Database.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.ExecutionStore = postgres.NewExecutionStore(pool)
		deps.WalletStore = postgres.NewWalletStore(pool)
	} else {
		logger.Warn("no database configured, using in-memory stores")
		deps.PositionStore = memory.NewPositionStore()
		deps.ExecutionStore = memory.NewExecutionStore()
		deps.WalletStore = memory.NewWalletStore()
	}

	// --- Swap router ---
	routerClient := router.NewClient(cfg.Router.BaseURL, cfg.Router.APIKey)
	deps.Router = routerClient

	// --- Redis: distributed locks and caches ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redis.NewLockManager(redisClient)
		deps.VaultCache = redis.NewVaultCache(redisClient, cfg.Scheduler.VaultSnapshotTTL.Duration)
		if cfg.Router.QuoteTTL.Duration > 0 {
			deps.Router = redis.NewCachedRouter(redisClient, routerClient, cfg.Router.QuoteTTL.Duration)
		}
	} else {
		logger.Warn("no redis configured, using in-process locks")
		deps.LockManager = memory.NewLockManager()
	}

	// --- Chain (vault contract reads) ---
	if cfg.Chain.RPCURL != "" {
		vaultClient, err := chain.NewVaultClient(ctx, cfg.Chain.RPCURL, cfg.Chain.VaultAddress, deps.Clock)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain: %w", err)
		}
		closers = append(closers, vaultClient.Close)
		deps.Vault = vaultClient
	}

	// --- S3 history archive ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.HistoryWriter = s3blob.NewExecutionArchiver(s3Client, cfg.S3.Prefix)
	}

	// --- Custodial wallets ---
	if cfg.Wallet.MasterPassword != "" {
		sealer, err := crypto.NewKeyManager(cfg.Wallet.MasterPassword)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: key manager: %w", err)
		}
		deps.WalletService = wallet.NewService(deps.WalletStore, sealer, deps.Clock, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
