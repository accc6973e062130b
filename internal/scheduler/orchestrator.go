package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Intervals configures the cadence of each sweep loop.
type Intervals struct {
	Execute time.Duration
	Yield   time.Duration
	Vault   time.Duration
	Archive time.Duration
}

// Orchestrator runs all scheduler loops: period execution, yield refresh,
// vault polling, and history archival.
type Orchestrator struct {
	executor  *ExecuteSweeper
	yield     *YieldSweeper
	vault     *VaultSweeper // nil when no chain endpoint is configured
	archiver  *Archiver     // nil when no blob storage is configured
	intervals Intervals
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator. vault and archiver are optional;
// pass nil to disable those loops.
func NewOrchestrator(
	executor *ExecuteSweeper,
	yield *YieldSweeper,
	vault *VaultSweeper,
	archiver *Archiver,
	intervals Intervals,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		executor:  executor,
		yield:     yield,
		vault:     vault,
		archiver:  archiver,
		intervals: intervals,
		logger:    logger,
	}
}

// Run starts all loops as concurrent goroutines under an errgroup. Each loop
// respects ctx cancellation; if any loop fails with a non-context error the
// group cancels the rest and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("scheduler starting",
		slog.Duration("execute_interval", o.intervals.Execute),
		slog.Duration("yield_interval", o.intervals.Yield),
		slog.Duration("vault_interval", o.intervals.Vault),
		slog.Duration("archive_interval", o.intervals.Archive),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting execute sweep loop")
		err := o.executor.RunLoop(ctx, o.intervals.Execute)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("execute sweep: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting yield sweep loop")
		err := o.yield.RunLoop(ctx, o.intervals.Yield)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("yield sweep: %w", err)
	})

	if o.vault != nil {
		g.Go(func() error {
			o.logger.Info("starting vault snapshot loop")
			err := o.vault.RunLoop(ctx, o.intervals.Vault)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("vault snapshot: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.Info("starting archiver loop")
			err := o.archiver.RunLoop(ctx, o.intervals.Archive)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("scheduler stopped cleanly")
	return nil
}
