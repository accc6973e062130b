package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// ExecutionStore keeps execution records in memory, ordered by insertion.
type ExecutionStore struct {
	mu      sync.RWMutex
	records []*domain.ExecutionRecord
}

// NewExecutionStore creates an empty in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{}
}

// Insert appends a record.
func (s *ExecutionStore) Insert(ctx context.Context, rec *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

// ListByPosition returns the most recent records for a position, newest
// first, capped at limit (0 means no cap).
func (s *ExecutionStore) ListByPosition(ctx context.Context, positionID string, limit int) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ExecutionRecord
	for _, rec := range s.records {
		if rec.PositionID == positionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBefore returns records executed before cutoff, oldest first.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.ExecutionRecord
	for _, rec := range s.records {
		if rec.ExecutedAt.Before(cutoff) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBefore removes records executed before cutoff and returns the count.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var removed int64
	for _, rec := range s.records {
		if rec.ExecutedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return removed, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
