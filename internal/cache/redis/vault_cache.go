package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/h2olabs/dcabot/internal/domain"
)

const vaultStateKey = "vault:state"

// VaultCache stores the latest vault snapshot so the HTTP reporting path
// never blocks on a chain call. The keeper's vault sweep is the only writer.
type VaultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewVaultCache creates a VaultCache. ttl bounds snapshot staleness: a dead
// keeper makes reads report ErrNotFound instead of serving ancient numbers.
func NewVaultCache(c *Client, ttl time.Duration) *VaultCache {
	return &VaultCache{rdb: c.Underlying(), ttl: ttl}
}

// vaultStateJSON is the cached wire shape; amounts travel as decimal strings.
type vaultStateJSON struct {
	TotalAssets      string    `json:"totalAssets"`
	TotalDeposited   string    `json:"totalDeposited"`
	TotalWithdrawn   string    `json:"totalWithdrawn"`
	TotalYieldEarned string    `json:"totalYieldEarned"`
	FetchedAt        time.Time `json:"fetchedAt"`
}

// SetVaultState caches a snapshot.
func (c *VaultCache) SetVaultState(ctx context.Context, state *domain.VaultState) error {
	payload, err := json.Marshal(vaultStateJSON{
		TotalAssets:      state.TotalAssets.String(),
		TotalDeposited:   state.TotalDeposited.String(),
		TotalWithdrawn:   state.TotalWithdrawn.String(),
		TotalYieldEarned: state.TotalYieldEarned.String(),
		FetchedAt:        state.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal vault state: %w", err)
	}
	if err := c.rdb.Set(ctx, vaultStateKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set vault state: %w", err)
	}
	return nil
}

// GetVaultState returns the cached snapshot or domain.ErrNotFound when the
// cache is cold or expired.
func (c *VaultCache) GetVaultState(ctx context.Context) (*domain.VaultState, error) {
	payload, err := c.rdb.Get(ctx, vaultStateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no vault snapshot cached", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get vault state: %w", err)
	}

	var stored vaultStateJSON
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("redis: decode vault state: %w", err)
	}

	state := &domain.VaultState{FetchedAt: stored.FetchedAt}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"totalAssets", stored.TotalAssets, &state.TotalAssets},
		{"totalDeposited", stored.TotalDeposited, &state.TotalDeposited},
		{"totalWithdrawn", stored.TotalWithdrawn, &state.TotalWithdrawn},
		{"totalYieldEarned", stored.TotalYieldEarned, &state.TotalYieldEarned},
	}
	for _, f := range fields {
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok {
			return nil, fmt.Errorf("redis: corrupt vault state field %s: %q", f.name, f.raw)
		}
		*f.dst = v
	}
	return state, nil
}
