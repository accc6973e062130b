package dca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/h2olabs/dcabot/internal/domain"
)

// fill is the outcome of one allocation leg of a period execution.
type fill struct {
	amountIn  *big.Int
	amountOut *big.Int
	txHash    string
}

// Execute runs one scheduled period for the position. It returns (false, nil)
// when the position is absent, not Active, not yet due, or gated by its limit
// price: those are skip conditions for the sweep, not errors. A router or
// storage failure returns (false, err) with the position's counters and
// schedule bit-for-bit unchanged, so the same position comes due again on the
// next sweep.
func (e *Engine) Execute(ctx context.Context, id string) (bool, error) {
	pos, err := e.positions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dca: execute %s: %w", id, err)
	}
	now := e.clock.Now().UTC()
	if !pos.Due(now) {
		return false, nil
	}

	unlock, err := e.locks.Acquire(ctx, lockKey(id), lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		// Another mutation is in flight; the position stays due and the next
		// sweep picks it up.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dca: execute %s: lock: %w", id, err)
	}
	defer unlock()

	// Re-read under the lock: a pause or close may have landed since the
	// sweep enumerated the active set.
	pos, err = e.positions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dca: execute %s: %w", id, err)
	}
	now = e.clock.Now().UTC()
	if !pos.Due(now) {
		return false, nil
	}

	fills, skip, err := e.buyBasket(ctx, pos)
	if err != nil {
		e.logger.WarnContext(ctx, "period execution failed, will retry next sweep",
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	if skip {
		return false, nil
	}

	spent := big.NewInt(0)
	acquired := big.NewInt(0)
	txHash := ""
	for _, f := range fills {
		spent.Add(spent, f.amountIn)
		acquired.Add(acquired, f.amountOut)
		txHash = f.txHash
	}

	pos.ExecutedPeriods++
	pos.TotalInvested.Add(pos.TotalInvested, spent)
	pos.TotalAcquired.Add(pos.TotalAcquired, acquired)
	if pos.TotalAcquired.Sign() > 0 {
		pos.AveragePrice = new(big.Int).Mul(pos.TotalInvested, big.NewInt(domain.PriceScale))
		pos.AveragePrice.Quo(pos.AveragePrice, pos.TotalAcquired)
	}
	// Anchor the schedule to the actual execution time so missed ticks do not
	// compound into a burst.
	pos.NextExecution = now.Add(time.Duration(pos.IntervalMs) * time.Millisecond)
	if pos.ExecutedPeriods >= pos.TotalPeriods {
		pos.Status = domain.StatusCompleted
	}
	pos.UpdatedAt = now

	if err := e.positions.Save(ctx, pos); err != nil {
		return false, fmt.Errorf("dca: execute %s: commit: %w", id, err)
	}

	rec := &domain.ExecutionRecord{
		ID:         "exec_" + uuid.NewString(),
		PositionID: pos.ID,
		Period:     pos.ExecutedPeriods,
		AmountIn:   spent,
		AmountOut:  acquired,
		Price:      periodPrice(spent, acquired),
		TxHash:     txHash,
		ExecutedAt: now,
	}
	if err := e.execs.Insert(ctx, rec); err != nil {
		e.logger.WarnContext(ctx, "execution record insert failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	e.logger.InfoContext(ctx, "period executed",
		slog.String("position_id", pos.ID),
		slog.Int("period", pos.ExecutedPeriods),
		slog.Int("total_periods", pos.TotalPeriods),
		slog.String("spent", spent.String()),
		slog.String("acquired", acquired.String()),
		slog.String("status", string(pos.Status)),
	)

	if e.notifier != nil {
		title := fmt.Sprintf("DCA executed (%d/%d)", pos.ExecutedPeriods, pos.TotalPeriods)
		msg := fmt.Sprintf("position %s spent %s, acquired %s", pos.ID, spent, acquired)
		if pos.Status == domain.StatusCompleted {
			title = "DCA plan completed"
		}
		if nerr := e.notifier.Notify(ctx, "dca_executed", title, msg); nerr != nil {
			e.logger.WarnContext(ctx, "execution notification failed",
				slog.String("position_id", pos.ID),
				slog.String("error", nerr.Error()),
			)
		}
	}

	return true, nil
}

// buyBasket converts one period's source amount into the position's target
// basket, one router call per allocation. The amount is split by integer
// percentage with the remainder on the final allocation so the period spend
// is exactly AmountPerPeriod. Returns skip=true when the limit-price strategy
// gates this period.
//
// If any leg fails the whole period is abandoned uncommitted; legs already
// swapped are reflected on chain but not in the position's accounting until a
// later period succeeds in full. Single-target positions, the only shape the
// product currently creates, cannot hit that window.
func (e *Engine) buyBasket(ctx context.Context, pos *domain.Position) ([]fill, bool, error) {
	hundred := big.NewInt(100)
	remaining := new(big.Int).Set(pos.AmountPerPeriod)

	fills := make([]fill, 0, len(pos.TargetTokens))
	for i, alloc := range pos.TargetTokens {
		share := new(big.Int)
		if i == len(pos.TargetTokens)-1 {
			share.Set(remaining)
		} else {
			share.Mul(pos.AmountPerPeriod, big.NewInt(int64(alloc.Percent)))
			share.Quo(share, hundred)
		}
		remaining.Sub(remaining, share)

		route, err := e.router.FindBestRoute(ctx, pos.SourceToken, alloc.Token, share)
		if err != nil {
			return nil, false, fmt.Errorf("find route %s->%s: %w", pos.SourceToken, alloc.Symbol, err)
		}

		if gate, reason := e.strategyGate(pos, share, route.ExpectedOut); gate {
			e.logger.InfoContext(ctx, "period gated by strategy",
				slog.String("position_id", pos.ID),
				slog.String("strategy", string(pos.Strategy)),
				slog.String("reason", reason),
			)
			return nil, true, nil
		}

		res, err := e.router.ExecuteSwap(ctx, route, share)
		if err != nil {
			return nil, false, fmt.Errorf("swap %s->%s: %w", pos.SourceToken, alloc.Symbol, err)
		}
		fills = append(fills, fill{amountIn: share, amountOut: res.AmountOut, txHash: res.TxHash})
	}
	return fills, false, nil
}

// strategyGate decides whether the quoted price blocks this period. Only the
// limit strategy gates; the tag set is closed, so every variant is handled
// here.
func (e *Engine) strategyGate(pos *domain.Position, amountIn, expectedOut *big.Int) (bool, string) {
	switch pos.Strategy {
	case domain.StrategyLimit:
		if expectedOut == nil || expectedOut.Sign() <= 0 {
			return true, "quote returned zero output"
		}
		quoted := periodPrice(amountIn, expectedOut)
		if quoted.Cmp(pos.LimitPrice) > 0 {
			return true, fmt.Sprintf("quoted price %s above limit %s", quoted, pos.LimitPrice)
		}
		return false, ""
	case domain.StrategyFixed, domain.StrategyValueAvg, domain.StrategyMultiToken:
		return false, ""
	default:
		return false, ""
	}
}

// periodPrice computes amountIn/amountOut at PriceScale fixed point, zero
// when amountOut is zero.
func periodPrice(amountIn, amountOut *big.Int) *big.Int {
	if amountOut == nil || amountOut.Sign() == 0 {
		return big.NewInt(0)
	}
	p := new(big.Int).Mul(amountIn, big.NewInt(domain.PriceScale))
	return p.Quo(p, amountOut)
}
