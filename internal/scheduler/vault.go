package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// VaultSnapshotSink caches the latest vault snapshot for the reporting path.
type VaultSnapshotSink interface {
	SetVaultState(ctx context.Context, state *domain.VaultState) error
}

// VaultSweeper polls the yield vault's on-chain state and caches the snapshot
// so HTTP reads never block on a chain call.
type VaultSweeper struct {
	vault  domain.VaultClient
	sink   VaultSnapshotSink
	logger *slog.Logger
}

// NewVaultSweeper creates a VaultSweeper.
func NewVaultSweeper(vault domain.VaultClient, sink VaultSnapshotSink, logger *slog.Logger) *VaultSweeper {
	return &VaultSweeper{vault: vault, sink: sink, logger: logger}
}

// Run fetches one vault snapshot and pushes it to the sink.
func (s *VaultSweeper) Run(ctx context.Context) error {
	state, err := s.vault.GetVaultState(ctx)
	if err != nil {
		return fmt.Errorf("reading vault state: %w", err)
	}

	if err := s.sink.SetVaultState(ctx, state); err != nil {
		return fmt.Errorf("caching vault state: %w", err)
	}

	s.logger.Info("vault snapshot refreshed",
		slog.String("total_assets", state.TotalAssets.String()),
		slog.String("total_yield", state.TotalYieldEarned.String()),
	)
	return nil
}

// RunLoop polls the vault on a repeating interval until the context is
// cancelled.
func (s *VaultSweeper) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := s.Run(ctx); err != nil {
		s.logger.Error("vault snapshot failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("vault snapshot loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Run(ctx); err != nil {
				s.logger.Error("vault snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}
