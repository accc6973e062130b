package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// VaultReader serves cached vault snapshots.
type VaultReader interface {
	GetVaultState(ctx context.Context) (*domain.VaultState, error)
}

// VaultHandler serves the yield vault reporting endpoints. Aggregate state
// comes from the keeper-refreshed cache; per-user balances go to the chain
// directly since they are rarely requested.
type VaultHandler struct {
	cache  VaultReader
	chain  domain.VaultClient // nil when no chain endpoint is configured
	logger *slog.Logger
}

// NewVaultHandler creates a VaultHandler. chain may be nil.
func NewVaultHandler(cache VaultReader, chain domain.VaultClient, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		cache:  cache,
		chain:  chain,
		logger: logger.With(slog.String("handler", "vault")),
	}
}

// GetVaultState returns the latest cached vault snapshot.
// GET /api/vault
func (h *VaultHandler) GetVaultState(w http.ResponseWriter, r *http.Request) {
	state, err := h.cache.GetVaultState(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalAssets":      state.TotalAssets.String(),
		"totalDeposited":   state.TotalDeposited.String(),
		"totalWithdrawn":   state.TotalWithdrawn.String(),
		"totalYieldEarned": state.TotalYieldEarned.String(),
		"fetchedAt":        state.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// GetUserAssets returns one owner's vault stake.
// GET /api/vault/assets/{owner}
func (h *VaultHandler) GetUserAssets(w http.ResponseWriter, r *http.Request) {
	if h.chain == nil {
		writeError(w, http.StatusServiceUnavailable, "chain endpoint not configured")
		return
	}

	assets, err := h.chain.GetUserAssets(r.Context(), pathParam(r, "owner"))
	if err != nil {
		h.logger.WarnContext(r.Context(), "user assets read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "vault read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":        assets.Owner,
		"shares":       assets.Shares.String(),
		"assetBalance": assets.AssetBalance.String(),
	})
}
