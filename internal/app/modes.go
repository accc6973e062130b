package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/h2olabs/dcabot/internal/dca"
	"github.com/h2olabs/dcabot/internal/scheduler"
	"github.com/h2olabs/dcabot/internal/server"
	"github.com/h2olabs/dcabot/internal/server/handler"
)

// ServeMode starts the HTTP API only. Positions can be created and managed
// but nothing executes them; a separate keeper process is expected.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	engine := a.buildEngine(deps)
	a.startHTTPServer(ctx, g, deps, engine)

	return g.Wait()
}

// KeeperMode starts the scheduler sweeps only: execution, yield refresh,
// vault snapshots, and history archival. No HTTP API is exposed.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)

	engine := a.buildEngine(deps)
	a.startScheduler(ctx, g, deps, engine)

	return g.Wait()
}

// FullMode starts the keeper sweeps and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	engine := a.buildEngine(deps)
	a.startScheduler(ctx, g, deps, engine)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine)
	}

	return g.Wait()
}

// buildEngine constructs the position engine from the wired dependencies.
func (a *App) buildEngine(deps *Dependencies) *dca.Engine {
	return dca.NewEngine(
		deps.PositionStore,
		deps.ExecutionStore,
		deps.Router,
		deps.LockManager,
		deps.Clock,
		deps.Notifier,
		a.cfg.Engine.YieldAPYBps,
		a.logger,
	)
}

// startScheduler adds the orchestrated sweep loops to the group. Vault
// snapshots require both a chain endpoint and Redis; archival requires a
// bucket.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *dca.Engine) {
	failureSink := scheduler.NewNotifierSink(deps.Notifier, a.logger)
	executeSweeper := scheduler.NewExecuteSweeper(engine, failureSink, a.logger)
	yieldSweeper := scheduler.NewYieldSweeper(engine, a.logger)

	var vaultSweeper *scheduler.VaultSweeper
	if deps.Vault != nil && deps.VaultCache != nil {
		vaultSweeper = scheduler.NewVaultSweeper(deps.Vault, deps.VaultCache, a.logger)
	}

	var archiver *scheduler.Archiver
	if deps.HistoryWriter != nil {
		archiver = scheduler.NewArchiver(
			deps.ExecutionStore,
			deps.HistoryWriter,
			a.cfg.Scheduler.ArchiveRetentionDays,
			deps.Clock,
			a.logger,
		)
	}

	orch := scheduler.NewOrchestrator(
		executeSweeper,
		yieldSweeper,
		vaultSweeper,
		archiver,
		scheduler.Intervals{
			Execute: a.cfg.Scheduler.ExecuteInterval.Duration,
			Yield:   a.cfg.Scheduler.YieldInterval.Duration,
			Vault:   a.cfg.Scheduler.VaultInterval.Duration,
			Archive: a.cfg.Scheduler.ArchiveInterval.Duration,
		},
		a.logger,
	)

	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startHTTPServer adds the HTTP API to the group: one goroutine serving and
// one waiting for cancellation to trigger a graceful shutdown.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *dca.Engine) {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Positions: handler.NewPositionHandler(engine, a.logger),
	}
	if deps.VaultCache != nil {
		handlers.Vault = handler.NewVaultHandler(deps.VaultCache, deps.Vault, a.logger)
	}
	if deps.WalletService != nil {
		handlers.Wallets = handler.NewWalletHandler(deps.WalletService, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "starting http server", slog.Int("port", a.cfg.Server.Port))
		if err := srv.Start(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
