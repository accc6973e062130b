package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/h2olabs/dcabot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner, source_token, target_tokens,
	amount_per_period::text, interval_name, interval_ms,
	total_periods, executed_periods, next_execution,
	strategy, limit_price::text,
	total_invested::text, total_acquired::text, average_price::text,
	status, created_at, updated_at`

// Save upserts the position. The upsert is keyed on the primary key, so two
// writers racing on the same ID resolve to last-write-wins on the row.
func (s *PositionStore) Save(ctx context.Context, pos *domain.Position) error {
	targets, err := json.Marshal(pos.TargetTokens)
	if err != nil {
		return fmt.Errorf("postgres: marshal target tokens for %s: %w", pos.ID, err)
	}

	const query = `
		INSERT INTO positions (
			id, owner, source_token, target_tokens,
			amount_per_period, interval_name, interval_ms,
			total_periods, executed_periods, next_execution,
			strategy, limit_price,
			total_invested, total_acquired, average_price,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6, $7,
			$8, $9, $10,
			$11, $12::numeric,
			$13::numeric, $14::numeric, $15::numeric,
			$16, $17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			executed_periods = EXCLUDED.executed_periods,
			next_execution   = EXCLUDED.next_execution,
			total_invested   = EXCLUDED.total_invested,
			total_acquired   = EXCLUDED.total_acquired,
			average_price    = EXCLUDED.average_price,
			status           = EXCLUDED.status,
			updated_at       = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		pos.ID, pos.Owner, pos.SourceToken, targets,
		pos.AmountPerPeriod.String(), string(pos.Interval), pos.IntervalMs,
		pos.TotalPeriods, pos.ExecutedPeriods, pos.NextExecution,
		string(pos.Strategy), nullableNumeric(pos.LimitPrice),
		pos.TotalInvested.String(), pos.TotalAcquired.String(), pos.AveragePrice.String(),
		string(pos.Status), pos.CreatedAt, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, err)
	}
	return nil
}

// Get returns the position or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	pos, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: position %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// GetByOwner returns all positions for an owner, newest first.
func (s *PositionStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE owner = $1 ORDER BY created_at DESC`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", owner, err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetActive returns all Active positions ordered by next execution, the
// scheduler's working set.
func (s *PositionStore) GetActive(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE status = $1 ORDER BY next_execution`,
		string(domain.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// Delete removes a position outright. Administrative only.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	return nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		pos      domain.Position
		targets  []byte
		interval string
		strategy string
		status   string
		amount   string
		limit    *string
		invested string
		acquired string
		avgPrice string
	)

	err := row.Scan(
		&pos.ID, &pos.Owner, &pos.SourceToken, &targets,
		&amount, &interval, &pos.IntervalMs,
		&pos.TotalPeriods, &pos.ExecutedPeriods, &pos.NextExecution,
		&strategy, &limit,
		&invested, &acquired, &avgPrice,
		&status, &pos.CreatedAt, &pos.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(targets, &pos.TargetTokens); err != nil {
		return nil, fmt.Errorf("decode target tokens: %w", err)
	}
	pos.Interval = domain.Interval(interval)
	pos.Strategy = domain.Strategy(strategy)
	pos.Status = domain.Status(status)

	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"amount_per_period", amount, &pos.AmountPerPeriod},
		{"total_invested", invested, &pos.TotalInvested},
		{"total_acquired", acquired, &pos.TotalAcquired},
		{"average_price", avgPrice, &pos.AveragePrice},
	}
	for _, f := range fields {
		v, ok := new(big.Int).SetString(f.raw, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt %s value %q", f.name, f.raw)
		}
		*f.dst = v
	}
	if limit != nil {
		v, ok := new(big.Int).SetString(*limit, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt limit_price value %q", *limit)
		}
		pos.LimitPrice = v
	}
	return &pos, nil
}

func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// nullableNumeric renders an optional amount for a NUMERIC column.
func nullableNumeric(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

var _ domain.PositionStore = (*PositionStore)(nil)
