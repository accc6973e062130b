package domain

import (
	"fmt"
	"math/big"
	"time"
)

// Status tracks where a position is in its lifecycle. Active and Paused may
// still change; Completed and Closed are terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

// Terminal reports whether no further lifecycle transitions may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusClosed
}

// Strategy selects how a position decides whether to buy on a due period.
type Strategy string

const (
	StrategyFixed      Strategy = "fixed"
	StrategyLimit      Strategy = "limit_price"
	StrategyValueAvg   Strategy = "value_averaging"
	StrategyMultiToken Strategy = "multi_token"
)

// ValidStrategy reports whether s is one of the known strategy tags.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyFixed, StrategyLimit, StrategyValueAvg, StrategyMultiToken:
		return true
	default:
		return false
	}
}

// Interval is the recurrence of a position's scheduled buys.
type Interval string

const (
	IntervalDaily    Interval = "daily"
	IntervalWeekly   Interval = "weekly"
	IntervalBiweekly Interval = "biweekly"
	IntervalMonthly  Interval = "monthly"
)

// intervalTable maps each recurrence to its wall-clock duration. A month is
// fixed at 30 days.
var intervalTable = map[Interval]time.Duration{
	IntervalDaily:    24 * time.Hour,
	IntervalWeekly:   7 * 24 * time.Hour,
	IntervalBiweekly: 14 * 24 * time.Hour,
	IntervalMonthly:  30 * 24 * time.Hour,
}

// IntervalDuration returns the duration between executions for the given
// recurrence. An unknown interval is a caller configuration bug and is
// rejected at the boundary that accepts it.
func IntervalDuration(iv Interval) (time.Duration, error) {
	d, ok := intervalTable[iv]
	if !ok {
		return 0, fmt.Errorf("domain: unknown interval %q", iv)
	}
	return d, nil
}

// PriceScale is the fixed-point denominator for AveragePrice: a price of
// 1 source unit per target unit is stored as 1e9.
const PriceScale = 1_000_000_000

// TokenAllocation is one leg of a position's target basket. Percent values
// across a basket sum to 100; a single-target position is a one-element
// basket at 100.
type TokenAllocation struct {
	Token   string `json:"token"` // chain address of the target token
	Symbol  string `json:"symbol"`
	Percent int    `json:"percent"`
}

// Position is one user's recurring-buy plan and its accumulated execution
// history. Owner, schedule, strategy, and the token set are immutable after
// creation; only counters, timestamps, and status change.
//
// All token amounts are integer smallest units (*big.Int), never floats.
type Position struct {
	ID    string
	Owner string // chain address of the funding wallet

	SourceToken  string
	TargetTokens []TokenAllocation

	AmountPerPeriod *big.Int
	Interval        Interval
	IntervalMs      int64 // derived from Interval at creation
	TotalPeriods    int
	ExecutedPeriods int
	NextExecution   time.Time

	Strategy   Strategy
	LimitPrice *big.Int // fixed-point at PriceScale; Limit strategy only

	TotalInvested *big.Int
	TotalAcquired *big.Int
	AveragePrice  *big.Int // TotalInvested*PriceScale/TotalAcquired; zero until first fill

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Due reports whether the position should be executed at time now.
func (p *Position) Due(now time.Time) bool {
	return p.Status == StatusActive && !now.Before(p.NextExecution)
}

// Clone returns a deep copy so store implementations can hand out positions
// without sharing big.Int backing arrays with callers.
func (p *Position) Clone() *Position {
	cp := *p
	cp.TargetTokens = append([]TokenAllocation(nil), p.TargetTokens...)
	cp.AmountPerPeriod = cloneInt(p.AmountPerPeriod)
	cp.LimitPrice = cloneInt(p.LimitPrice)
	cp.TotalInvested = cloneInt(p.TotalInvested)
	cp.TotalAcquired = cloneInt(p.TotalAcquired)
	cp.AveragePrice = cloneInt(p.AveragePrice)
	return &cp
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// ExecutionRecord is the audit row written for each successful period
// execution of a position.
type ExecutionRecord struct {
	ID         string
	PositionID string
	Period     int // 1-based period number
	AmountIn   *big.Int
	AmountOut  *big.Int
	Price      *big.Int // fixed-point at PriceScale
	TxHash     string
	ExecutedAt time.Time
}
