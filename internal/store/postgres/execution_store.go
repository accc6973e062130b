package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/h2olabs/dcabot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionSelectCols = `id, position_id, period,
	amount_in::text, amount_out::text, price::text, tx_hash, executed_at`

// Insert records one period execution.
func (s *ExecutionStore) Insert(ctx context.Context, rec *domain.ExecutionRecord) error {
	const query = `
		INSERT INTO executions (
			id, position_id, period, amount_in, amount_out, price, tx_hash, executed_at
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.PositionID, rec.Period,
		rec.AmountIn.String(), rec.AmountOut.String(), rec.Price.String(),
		rec.TxHash, rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListByPosition returns a position's executions newest first. limit <= 0
// means no limit.
func (s *ExecutionStore) ListByPosition(ctx context.Context, positionID string, limit int) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + executionSelectCols + `
		FROM executions WHERE position_id = $1 ORDER BY executed_at DESC`
	args := []any{positionID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions for %s: %w", positionID, err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// ListBefore returns up to limit executions older than cutoff, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionSelectCols+`
		FROM executions WHERE executed_at < $1 ORDER BY executed_at LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before %v: %w", cutoff, err)
	}
	defer rows.Close()

	return scanExecutions(rows)
}

// DeleteBefore removes executions older than cutoff and reports how many
// rows went.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM executions WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before %v: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func scanExecutions(rows pgx.Rows) ([]*domain.ExecutionRecord, error) {
	var recs []*domain.ExecutionRecord
	for rows.Next() {
		var (
			rec       domain.ExecutionRecord
			amountIn  string
			amountOut string
			price     string
			txHash    *string
		)
		if err := rows.Scan(
			&rec.ID, &rec.PositionID, &rec.Period,
			&amountIn, &amountOut, &price, &txHash, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}

		fields := []struct {
			name string
			raw  string
			dst  **big.Int
		}{
			{"amount_in", amountIn, &rec.AmountIn},
			{"amount_out", amountOut, &rec.AmountOut},
			{"price", price, &rec.Price},
		}
		for _, f := range fields {
			v, ok := new(big.Int).SetString(f.raw, 10)
			if !ok {
				return nil, fmt.Errorf("postgres: corrupt %s value %q", f.name, f.raw)
			}
			*f.dst = v
		}
		if txHash != nil {
			rec.TxHash = *txHash
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
