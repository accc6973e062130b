package dca

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2olabs/dcabot/internal/domain"
	"github.com/h2olabs/dcabot/internal/store/memory"
)

// fakeClock is a settable domain.Clock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// stubRouter quotes and fills at a fixed out/in ratio, or fails on demand.
type stubRouter struct {
	num, den  int64
	failQuote bool
	failSwap  bool
	swaps     int
}

func (r *stubRouter) convert(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(r.num))
	return out.Quo(out, big.NewInt(r.den))
}

func (r *stubRouter) FindBestRoute(ctx context.Context, from, to string, amountIn *big.Int) (*domain.Route, error) {
	if r.failQuote {
		return nil, domain.ErrRouteUnavailable
	}
	return &domain.Route{
		ID:          "route-1",
		FromToken:   from,
		ToToken:     to,
		AmountIn:    new(big.Int).Set(amountIn),
		ExpectedOut: r.convert(amountIn),
	}, nil
}

func (r *stubRouter) ExecuteSwap(ctx context.Context, route *domain.Route, amountIn *big.Int) (*domain.SwapResult, error) {
	if r.failSwap {
		return nil, domain.ErrRouteUnavailable
	}
	r.swaps++
	return &domain.SwapResult{AmountOut: r.convert(amountIn), TxHash: "0xfill"}, nil
}

type testHarness struct {
	engine *Engine
	store  *memory.PositionStore
	execs  *memory.ExecutionStore
	router *stubRouter
	clock  *fakeClock
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		store:  memory.NewPositionStore(),
		execs:  memory.NewExecutionStore(),
		router: &stubRouter{num: 255, den: 1}, // 100 USDC (6 dec) -> 25.5 units (9 dec)
		clock:  &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.engine = NewEngine(
		h.store, h.execs, h.router,
		memory.NewLockManager(), h.clock, nil,
		1200, slog.Default(),
	)
	return h
}

func weeklyConfig(periods int) Config {
	return Config{
		SourceToken:     "0xusdc",
		SourceDecimals:  6,
		TargetTokens:    []domain.TokenAllocation{{Token: "0xweth", Symbol: "WETH", Percent: 100}},
		AmountPerPeriod: "100",
		Interval:        domain.IntervalWeekly,
		TotalPeriods:    periods,
		Strategy:        domain.StrategyFixed,
	}
}

func TestCreateSchedulesFirstExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusActive, pos.Status)
	assert.Equal(t, 0, pos.ExecutedPeriods)
	assert.Equal(t, "100000000", pos.AmountPerPeriod.String())
	assert.Equal(t, int64(604800000), pos.IntervalMs)
	assert.Equal(t, h.clock.now.Add(7*24*time.Hour), pos.NextExecution)
	assert.Zero(t, pos.TotalInvested.Sign())
	assert.Zero(t, pos.TotalAcquired.Sign())

	stored, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, stored.ID)
}

func TestCreateRejectsBadConfig(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := weeklyConfig(4)
	cfg.TotalPeriods = 0
	_, err := h.engine.Create(ctx, "0xowner", cfg)
	assert.Error(t, err)

	cfg = weeklyConfig(4)
	cfg.TargetTokens[0].Percent = 90
	_, err = h.engine.Create(ctx, "0xowner", cfg)
	assert.Error(t, err)

	cfg = weeklyConfig(4)
	cfg.Strategy = domain.Strategy("martingale")
	_, err = h.engine.Create(ctx, "0xowner", cfg)
	assert.Error(t, err)

	cfg = weeklyConfig(4)
	cfg.Interval = domain.Interval("hourly")
	_, err = h.engine.Create(ctx, "0xowner", cfg)
	assert.Error(t, err)

	cfg = weeklyConfig(4)
	cfg.Strategy = domain.StrategyLimit
	_, err = h.engine.Create(ctx, "0xowner", cfg)
	assert.Error(t, err, "limit strategy without a limit price")
}

func TestExecuteAccountsOnePeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)

	// Not due yet: skip without error.
	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)

	h.clock.Advance(7 * 24 * time.Hour)
	execTime := h.clock.now

	done, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, done)

	got, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ExecutedPeriods)
	assert.Equal(t, "100000000", got.TotalInvested.String())
	assert.Equal(t, "25500000000", got.TotalAcquired.String())
	// 100e6 * 1e9 / 25.5e9 floors to 3921568.
	assert.Equal(t, "3921568", got.AveragePrice.String())
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, execTime.Add(7*24*time.Hour), got.NextExecution)

	recs, err := h.execs.ListByPosition(ctx, pos.ID, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Period)
	assert.Equal(t, "100000000", recs[0].AmountIn.String())
	assert.Equal(t, "0xfill", recs[0].TxHash)
}

func TestExecuteInvariantsAcrossPeriods(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(3))
	require.NoError(t, err)

	prevNext := pos.NextExecution
	for i := 1; i <= 3; i++ {
		h.clock.Advance(7 * 24 * time.Hour)
		done, err := h.engine.Execute(ctx, pos.ID)
		require.NoError(t, err)
		require.True(t, done, "period %d", i)

		got, err := h.store.Get(ctx, pos.ID)
		require.NoError(t, err)
		assert.LessOrEqual(t, got.ExecutedPeriods, got.TotalPeriods)

		want := new(big.Int).Mul(got.AmountPerPeriod, big.NewInt(int64(got.ExecutedPeriods)))
		assert.Zero(t, want.Cmp(got.TotalInvested), "totalInvested must equal periods*amount exactly")

		assert.False(t, got.NextExecution.Before(prevNext), "nextExecution must be non-decreasing")
		prevNext = got.NextExecution
	}

	got, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestRouterFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)

	before, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)

	h.router.failSwap = true
	done, err := h.engine.Execute(ctx, pos.ID)
	assert.False(t, done)
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)

	after, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ExecutedPeriods, after.ExecutedPeriods)
	assert.Zero(t, before.TotalInvested.Cmp(after.TotalInvested))
	assert.Zero(t, before.TotalAcquired.Cmp(after.TotalAcquired))
	assert.Equal(t, before.NextExecution, after.NextExecution)
	assert.Equal(t, domain.StatusActive, after.Status)

	// Still due: once the router recovers, the same sweep entry succeeds.
	h.router.failSwap = false
	done, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSinglePeriodPositionCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(1))
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)

	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	require.True(t, done)

	got, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	active, err := h.engine.GetActivePositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Terminal states never execute again.
	h.clock.Advance(7 * 24 * time.Hour)
	done, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)

	after, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.ExecutedPeriods)
	assert.Equal(t, domain.StatusCompleted, after.Status)
}

func TestPauseResumeRecomputesSchedule(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)
	originalNext := pos.NextExecution

	require.NoError(t, h.engine.Pause(ctx, pos.ID))
	paused, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)
	assert.Equal(t, originalNext, paused.NextExecution, "pause leaves the schedule alone")

	// A long pause: resuming schedules one interval from the resume call, not
	// from the stale stored value.
	h.clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, h.engine.Resume(ctx, pos.ID))

	resumed, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)
	assert.Equal(t, h.clock.now.Add(7*24*time.Hour), resumed.NextExecution)

	// No catch-up burst for the missed periods.
	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestTransitionGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.Pause(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, h.engine.Resume(ctx, "missing"), domain.ErrNotFound)
	assert.ErrorIs(t, h.engine.Close(ctx, "missing"), domain.ErrNotFound)

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)

	assert.ErrorIs(t, h.engine.Resume(ctx, pos.ID), domain.ErrInvalidTransition, "resume on active")

	require.NoError(t, h.engine.Pause(ctx, pos.ID))
	assert.ErrorIs(t, h.engine.Pause(ctx, pos.ID), domain.ErrInvalidTransition, "pause on paused")

	// Paused positions never execute.
	h.clock.Advance(7 * 24 * time.Hour)
	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)

	require.NoError(t, h.engine.Close(ctx, pos.ID))
	first, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, first.Status)

	require.NoError(t, h.engine.Close(ctx, pos.ID))
	second, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, second.Status)
	assert.Equal(t, first.ExecutedPeriods, second.ExecutedPeriods)
	assert.Zero(t, first.TotalInvested.Cmp(second.TotalInvested))

	// Closed positions never execute.
	h.clock.Advance(7 * 24 * time.Hour)
	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCloseFromPausedAndCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)
	require.NoError(t, h.engine.Pause(ctx, pos.ID))
	require.NoError(t, h.engine.Close(ctx, pos.ID))

	done, err := h.engine.Create(ctx, "0xowner", weeklyConfig(1))
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)
	_, err = h.engine.Execute(ctx, done.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, h.engine.Close(ctx, done.ID), domain.ErrInvalidTransition)
}

func TestMultiTokenSplitSpendsExactAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := weeklyConfig(2)
	cfg.Strategy = domain.StrategyMultiToken
	cfg.TargetTokens = []domain.TokenAllocation{
		{Token: "0xweth", Symbol: "WETH", Percent: 60},
		{Token: "0xwbtc", Symbol: "WBTC", Percent: 40},
	}
	// An amount that does not divide evenly by the percentages.
	cfg.AmountPerPeriod = "99.999999"

	pos, err := h.engine.Create(ctx, "0xowner", cfg)
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)

	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, 2, h.router.swaps, "one swap per allocation")

	got, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TotalInvested.Cmp(got.AmountPerPeriod),
		"remainder goes to the last allocation so the exact period amount is spent")
}

func TestLimitStrategyGatesOnQuotedPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cfg := weeklyConfig(4)
	cfg.Strategy = domain.StrategyLimit
	// Quoted price will be 3921568 at PriceScale; a lower limit blocks.
	cfg.LimitPrice = big.NewInt(3_000_000)

	pos, err := h.engine.Create(ctx, "0xowner", cfg)
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)

	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Zero(t, h.router.swaps)

	got, err := h.store.Get(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.ExecutedPeriods)
	assert.Equal(t, domain.StatusActive, got.Status, "gated period stays due for the next sweep")

	// A better market clears the gate.
	h.router.num, h.router.den = 400, 1 // quoted price 250000
	done, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestEstimateYield(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)

	// Day zero: no accrual.
	y, err := h.engine.EstimateYield(ctx, pos.ID)
	require.NoError(t, err)
	assert.Zero(t, y.TotalYield.Sign())
	assert.Zero(t, y.CurrentValue.Cmp(y.TotalInvested))

	h.clock.Advance(7 * 24 * time.Hour)
	_, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)

	// One full year at 12% APY on the invested 100 USDC.
	h.clock.Advance(365 * 24 * time.Hour)
	y, err = h.engine.EstimateYield(ctx, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, "100000000", y.TotalInvested.String())
	assert.Equal(t, "12000000", y.TotalYield.String())
	assert.Equal(t, "112000000", y.CurrentValue.String())
	assert.Equal(t, 1200, y.APYBps)

	_, err = h.engine.EstimateYield(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteSkipsWhenLockHeld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	locks := memory.NewLockManager()
	h.engine = NewEngine(h.store, h.execs, h.router, locks, h.clock, nil, 1200, slog.Default())

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)
	h.clock.Advance(7 * 24 * time.Hour)

	unlock, err := locks.Acquire(ctx, "position:"+pos.ID, time.Minute)
	require.NoError(t, err)

	done, err := h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, done, "a held lock is a skip, not an error")

	unlock()
	done, err = h.engine.Execute(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestHistoryRequiresExistingPosition(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.History(context.Background(), "missing", 10)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// 365-day yield check depends on daysHeld derivation staying in whole days.
func TestDaysHeldFloorsPartialDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pos, err := h.engine.Create(ctx, "0xowner", weeklyConfig(4))
	require.NoError(t, err)
	h.clock.Advance(23 * time.Hour)

	y, err := h.engine.EstimateYield(ctx, pos.ID)
	require.NoError(t, err)
	assert.Zero(t, y.TotalYield.Sign())
}
