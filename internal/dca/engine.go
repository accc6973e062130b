// Package dca implements the position lifecycle engine: creation, the
// pause/resume/close transitions, scheduled period execution, and the
// yield-estimate query. All accounting is exact integer arithmetic on
// smallest-unit amounts.
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

// lockTTL bounds how long a crashed holder can leave a position lock behind.
const lockTTL = 2 * time.Minute

// Notifier is the subset of the notification dispatcher the engine uses.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config is the user-supplied shape of a new position. Business-rule bounds
// (minimum amounts, period caps) are enforced by the front door; the engine
// validates structure only.
type Config struct {
	SourceToken     string
	SourceDecimals  int
	TargetTokens    []domain.TokenAllocation
	AmountPerPeriod string // human decimal, e.g. "100.5"
	Interval        domain.Interval
	TotalPeriods    int
	Strategy        domain.Strategy
	LimitPrice      *big.Int // fixed-point at domain.PriceScale; Limit strategy only
}

// Engine owns all position mutations. Every mutating operation serializes on
// a per-position lock so a pause arriving mid-execute cannot race the execute
// commit.
type Engine struct {
	positions domain.PositionStore
	execs     domain.ExecutionStore
	router    domain.RouterClient
	locks     domain.LockManager
	clock     domain.Clock
	notifier  Notifier // may be nil
	yieldBps  int      // modeled annual rate for yield estimates, basis points
	logger    *slog.Logger
}

// NewEngine creates an Engine with all required collaborators. notifier may
// be nil when no notification channel is configured.
func NewEngine(
	positions domain.PositionStore,
	execs domain.ExecutionStore,
	router domain.RouterClient,
	locks domain.LockManager,
	clock domain.Clock,
	notifier Notifier,
	yieldBps int,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		positions: positions,
		execs:     execs,
		router:    router,
		locks:     locks,
		clock:     clock,
		notifier:  notifier,
		yieldBps:  yieldBps,
		logger:    logger.With(slog.String("component", "dca_engine")),
	}
}

func lockKey(id string) string {
	return "position:" + id
}

// Create validates the structural shape of cfg, converts the decimal amount
// into smallest units, and persists a new Active position whose first
// execution is one interval from now.
func (e *Engine) Create(ctx context.Context, owner string, cfg Config) (*domain.Position, error) {
	if owner == "" {
		return nil, errors.New("dca: owner required")
	}
	if !domain.ValidStrategy(cfg.Strategy) {
		return nil, fmt.Errorf("dca: unknown strategy %q", cfg.Strategy)
	}
	if cfg.TotalPeriods <= 0 {
		return nil, fmt.Errorf("dca: total periods must be positive, got %d", cfg.TotalPeriods)
	}
	if len(cfg.TargetTokens) == 0 {
		return nil, errors.New("dca: at least one target token required")
	}
	sum := 0
	for _, alloc := range cfg.TargetTokens {
		if alloc.Percent <= 0 {
			return nil, fmt.Errorf("dca: allocation percent must be positive, got %d for %s", alloc.Percent, alloc.Symbol)
		}
		sum += alloc.Percent
	}
	if sum != 100 {
		return nil, fmt.Errorf("dca: allocation percents must sum to 100, got %d", sum)
	}
	if cfg.Strategy == domain.StrategyLimit && (cfg.LimitPrice == nil || cfg.LimitPrice.Sign() <= 0) {
		return nil, errors.New("dca: limit strategy requires a positive limit price")
	}

	interval, err := domain.IntervalDuration(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("dca: %w", err)
	}

	amount, err := domain.ParseUnits(cfg.AmountPerPeriod, cfg.SourceDecimals)
	if err != nil {
		return nil, fmt.Errorf("dca: amount per period: %w", err)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount per period must be positive", domain.ErrInvalidAmount)
	}

	now := e.clock.Now().UTC()
	pos := &domain.Position{
		ID:              "dca_" + uuid.NewString(),
		Owner:           owner,
		SourceToken:     cfg.SourceToken,
		TargetTokens:    append([]domain.TokenAllocation(nil), cfg.TargetTokens...),
		AmountPerPeriod: amount,
		Interval:        cfg.Interval,
		IntervalMs:      interval.Milliseconds(),
		TotalPeriods:    cfg.TotalPeriods,
		ExecutedPeriods: 0,
		NextExecution:   now.Add(interval),
		Strategy:        cfg.Strategy,
		LimitPrice:      cfg.LimitPrice,
		TotalInvested:   big.NewInt(0),
		TotalAcquired:   big.NewInt(0),
		AveragePrice:    big.NewInt(0),
		Status:          domain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.positions.Save(ctx, pos); err != nil {
		return nil, fmt.Errorf("dca: save new position: %w", err)
	}

	e.logger.InfoContext(ctx, "position created",
		slog.String("position_id", pos.ID),
		slog.String("owner", owner),
		slog.String("amount_per_period", amount.String()),
		slog.String("interval", string(cfg.Interval)),
		slog.Int("total_periods", cfg.TotalPeriods),
	)
	return pos, nil
}

// Pause suspends an Active position. The next-execution time and counters are
// left untouched; Resume recomputes the schedule.
func (e *Engine) Pause(ctx context.Context, id string) error {
	return e.transition(ctx, id, "pause", func(pos *domain.Position) error {
		if pos.Status != domain.StatusActive {
			return fmt.Errorf("%w: pause requires active, position %s is %s", domain.ErrInvalidTransition, id, pos.Status)
		}
		pos.Status = domain.StatusPaused
		return nil
	})
}

// Resume reactivates a Paused position. The next execution is rescheduled one
// full interval from now: paused time is excised, not replayed.
func (e *Engine) Resume(ctx context.Context, id string) error {
	return e.transition(ctx, id, "resume", func(pos *domain.Position) error {
		if pos.Status != domain.StatusPaused {
			return fmt.Errorf("%w: resume requires paused, position %s is %s", domain.ErrInvalidTransition, id, pos.Status)
		}
		pos.Status = domain.StatusActive
		pos.NextExecution = e.clock.Now().UTC().Add(time.Duration(pos.IntervalMs) * time.Millisecond)
		return nil
	})
}

// Close terminates an Active or Paused position. Closing an already-Closed
// position is an idempotent no-op; a Completed position stays Completed.
func (e *Engine) Close(ctx context.Context, id string) error {
	return e.transition(ctx, id, "close", func(pos *domain.Position) error {
		switch pos.Status {
		case domain.StatusCompleted:
			return fmt.Errorf("%w: position %s already completed", domain.ErrInvalidTransition, id)
		case domain.StatusClosed:
			return nil // idempotent
		default:
			pos.Status = domain.StatusClosed
			return nil
		}
	})
}

// transition applies fn to the position under its per-ID lock and persists
// the result with a fresh UpdatedAt stamp.
func (e *Engine) transition(ctx context.Context, id, op string, fn func(*domain.Position) error) error {
	unlock, err := e.locks.Acquire(ctx, lockKey(id), lockTTL)
	if err != nil {
		return fmt.Errorf("dca: %s %s: %w", op, id, err)
	}
	defer unlock()

	pos, err := e.positions.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("dca: %s %s: %w", op, id, err)
	}
	if err := fn(pos); err != nil {
		return err
	}
	pos.UpdatedAt = e.clock.Now().UTC()
	if err := e.positions.Save(ctx, pos); err != nil {
		return fmt.Errorf("dca: %s %s: save: %w", op, id, err)
	}

	e.logger.InfoContext(ctx, "position transition",
		slog.String("position_id", id),
		slog.String("op", op),
		slog.String("status", string(pos.Status)),
	)
	return nil
}

// GetPosition returns a position by ID.
func (e *Engine) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	return e.positions.Get(ctx, id)
}

// GetUserPositions returns all positions owned by owner.
func (e *Engine) GetUserPositions(ctx context.Context, owner string) ([]*domain.Position, error) {
	return e.positions.GetByOwner(ctx, owner)
}

// GetActivePositions returns the scheduler's working set.
func (e *Engine) GetActivePositions(ctx context.Context) ([]*domain.Position, error) {
	return e.positions.GetActive(ctx)
}

// History returns the most recent execution records for a position.
func (e *Engine) History(ctx context.Context, id string, limit int) ([]*domain.ExecutionRecord, error) {
	if _, err := e.positions.Get(ctx, id); err != nil {
		return nil, err
	}
	return e.execs.ListByPosition(ctx, id, limit)
}
