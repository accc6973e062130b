package dca

import (
	"context"
	"fmt"
	"math/big"

	"github.com/h2olabs/dcabot/internal/domain"
)

// EstimateYield returns the estimated current value of a position's parked
// funds: totalInvested accruing at the modeled annual rate for the days the
// position has been held. The authoritative figure is the vault's on-chain
// state; this is a cheap local projection for status displays.
func (e *Engine) EstimateYield(ctx context.Context, id string) (*domain.YieldBreakdown, error) {
	pos, err := e.positions.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("dca: estimate yield %s: %w", id, err)
	}

	daysHeld := int64(e.clock.Now().UTC().Sub(pos.CreatedAt).Hours() / 24)
	if daysHeld < 0 {
		daysHeld = 0
	}

	// yield = invested * rateBps * days / (365 * 10000), integer arithmetic.
	yield := new(big.Int).Mul(pos.TotalInvested, big.NewInt(int64(e.yieldBps)))
	yield.Mul(yield, big.NewInt(daysHeld))
	yield.Quo(yield, big.NewInt(365*10_000))

	return &domain.YieldBreakdown{
		TotalInvested: new(big.Int).Set(pos.TotalInvested),
		CurrentValue:  new(big.Int).Add(pos.TotalInvested, yield),
		TotalYield:    yield,
		APYBps:        e.yieldBps,
	}, nil
}
