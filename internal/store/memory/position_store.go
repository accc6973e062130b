// Package memory implements domain store interfaces with in-process maps.
// It backs tests and the no-database operating mode; production deployments
// use the postgres package.
package memory

import (
	"context"
	"sync"

	"github.com/h2olabs/dcabot/internal/domain"
)

// PositionStore is a mutex-guarded map store. All methods return deep copies
// so callers can never mutate stored state without going through Save.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]*domain.Position
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*domain.Position)}
}

// Save upserts a position by ID.
func (s *PositionStore) Save(ctx context.Context, pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ID] = pos.Clone()
	return nil
}

// Get returns the position with the given ID, or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return pos.Clone(), nil
}

// GetByOwner returns all positions belonging to owner, in unspecified order.
func (s *PositionStore) GetByOwner(ctx context.Context, owner string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Position
	for _, pos := range s.positions {
		if pos.Owner == owner {
			out = append(out, pos.Clone())
		}
	}
	return out, nil
}

// GetActive returns all positions with Active status.
func (s *PositionStore) GetActive(ctx context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Position
	for _, pos := range s.positions {
		if pos.Status == domain.StatusActive {
			out = append(out, pos.Clone())
		}
	}
	return out, nil
}

// Delete removes a position. Deleting an absent ID is a no-op.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, id)
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
