// Package scheduler drives the periodic sweeps: period execution over the
// active set, yield snapshots, vault state polling, and execution-history
// archival. Each sweeper exposes a single-pass Run plus a ticker RunLoop; the
// Orchestrator composes the loops under one errgroup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// PositionExecutor is the slice of the engine the execute sweep needs.
type PositionExecutor interface {
	GetActivePositions(ctx context.Context) ([]*domain.Position, error)
	Execute(ctx context.Context, id string) (bool, error)
}

// FailureSink receives per-position execution failures. The sweep itself
// never aborts on one bad position; failures are reported and the sweep moves
// on.
type FailureSink interface {
	ReportFailure(ctx context.Context, positionID string, err error)
}

// SweepStats summarizes one pass over the active set.
type SweepStats struct {
	Scanned  int
	Executed int
	Skipped  int
	Failed   int
}

// ExecuteSweeper walks the active positions and runs every due period.
type ExecuteSweeper struct {
	executor PositionExecutor
	failures FailureSink // may be nil
	logger   *slog.Logger
}

// NewExecuteSweeper creates an ExecuteSweeper. failures may be nil.
func NewExecuteSweeper(executor PositionExecutor, failures FailureSink, logger *slog.Logger) *ExecuteSweeper {
	return &ExecuteSweeper{
		executor: executor,
		failures: failures,
		logger:   logger,
	}
}

// Run executes a single sweep. A failure on one position is reported to the
// sink and the sweep continues; only listing the active set is fatal.
func (s *ExecuteSweeper) Run(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	positions, err := s.executor.GetActivePositions(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing active positions: %w", err)
	}
	stats.Scanned = len(positions)

	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("execute sweep cancelled: %w", err)
		}

		executed, err := s.executor.Execute(ctx, pos.ID)
		switch {
		case err != nil:
			stats.Failed++
			s.logger.Error("period execution failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			if s.failures != nil {
				s.failures.ReportFailure(ctx, pos.ID, err)
			}
		case executed:
			stats.Executed++
		default:
			stats.Skipped++
		}
	}

	s.logger.Info("execute sweep complete",
		slog.Int("scanned", stats.Scanned),
		slog.Int("executed", stats.Executed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}

// RunLoop runs the execute sweep on a repeating interval until the context is
// cancelled.
func (s *ExecuteSweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	// Run immediately on start.
	if _, err := s.Run(ctx); err != nil {
		s.logger.Error("execute sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("execute sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("execute sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
