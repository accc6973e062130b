package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// YieldEstimator is the slice of the engine the yield sweep needs.
type YieldEstimator interface {
	GetActivePositions(ctx context.Context) ([]*domain.Position, error)
	EstimateYield(ctx context.Context, id string) (*domain.YieldBreakdown, error)
}

// YieldSweeper periodically refreshes the local yield projection for every
// active position so status queries serve a recent figure without touching
// the chain.
type YieldSweeper struct {
	estimator YieldEstimator
	logger    *slog.Logger
}

// NewYieldSweeper creates a YieldSweeper.
func NewYieldSweeper(estimator YieldEstimator, logger *slog.Logger) *YieldSweeper {
	return &YieldSweeper{estimator: estimator, logger: logger}
}

// Run executes a single yield refresh pass.
func (s *YieldSweeper) Run(ctx context.Context) error {
	positions, err := s.estimator.GetActivePositions(ctx)
	if err != nil {
		return fmt.Errorf("listing active positions: %w", err)
	}

	refreshed := 0
	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("yield sweep cancelled: %w", err)
		}

		breakdown, err := s.estimator.EstimateYield(ctx, pos.ID)
		if err != nil {
			s.logger.Warn("yield estimate failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		refreshed++
		s.logger.Debug("yield refreshed",
			slog.String("position_id", pos.ID),
			slog.String("invested", breakdown.TotalInvested.String()),
			slog.String("yield", breakdown.TotalYield.String()),
		)
	}

	s.logger.Info("yield sweep complete", slog.Int("refreshed", refreshed))
	return nil
}

// RunLoop runs the yield sweep on a repeating interval until the context is
// cancelled.
func (s *YieldSweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := s.Run(ctx); err != nil {
		s.logger.Error("yield sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("yield sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("yield sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
