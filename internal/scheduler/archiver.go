package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// archiveBatchSize caps how many records move to cold storage per blob write.
const archiveBatchSize = 1000

// HistoryWriter persists a batch of execution records to cold storage and
// returns the object key it wrote.
type HistoryWriter interface {
	WriteExecutions(ctx context.Context, recs []*domain.ExecutionRecord) (string, error)
}

// Archiver moves execution history older than the retention window out of the
// hot store into blob storage. Records are deleted only after the blob write
// for their batch succeeds.
type Archiver struct {
	execs         domain.ExecutionStore
	writer        HistoryWriter
	retentionDays int
	clock         domain.Clock
	logger        *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(execs domain.ExecutionStore, writer HistoryWriter, retentionDays int, clock domain.Clock, logger *slog.Logger) *Archiver {
	return &Archiver{
		execs:         execs,
		writer:        writer,
		retentionDays: retentionDays,
		clock:         clock,
		logger:        logger,
	}
}

// Run executes a single archive pass: batches of records older than the
// retention cutoff are written to blob storage oldest-first, then dropped
// from the hot store up to the last archived timestamp.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.clock.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)

	var archived int64
	for {
		if err := ctx.Err(); err != nil {
			return archived, fmt.Errorf("archive run cancelled: %w", err)
		}

		recs, err := a.execs.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return archived, fmt.Errorf("listing executions before %v: %w", cutoff, err)
		}
		if len(recs) == 0 {
			break
		}

		key, err := a.writer.WriteExecutions(ctx, recs)
		if err != nil {
			return archived, fmt.Errorf("writing archive batch of %d: %w", len(recs), err)
		}

		// Records come back oldest-first, so everything at or before the last
		// batch timestamp is now safely in the blob.
		batchEnd := recs[len(recs)-1].ExecutedAt.Add(time.Nanosecond)
		deleted, err := a.execs.DeleteBefore(ctx, batchEnd)
		if err != nil {
			return archived, fmt.Errorf("pruning archived executions: %w", err)
		}
		archived += deleted

		a.logger.Info("archived execution batch",
			slog.String("object_key", key),
			slog.Int("batch_size", len(recs)),
			slog.Int64("deleted", deleted),
		)
	}

	if archived > 0 {
		a.logger.Info("archive run complete",
			slog.Time("cutoff", cutoff),
			slog.Int64("archived", archived),
		)
	}
	return archived, nil
}

// RunLoop runs the archiver on a repeating interval until the context is
// cancelled. The first pass runs one interval after start so boot is not
// front-loaded with blob writes.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
