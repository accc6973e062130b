package memory

import (
	"context"
	"sync"
	"time"

	"github.com/h2olabs/dcabot/internal/domain"
)

// LockManager is an in-process implementation of domain.LockManager. The TTL
// is ignored; locks live until released. Suitable for single-instance
// deployments and tests; multi-instance keepers use the redis lock manager.
type LockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockManager creates an empty in-process lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]bool)}
}

// Acquire takes the named lock, returning domain.ErrLockHeld if it is taken.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.held[key] {
		return nil, domain.ErrLockHeld
	}
	lm.held[key] = true

	released := false
	unlock := func() {
		lm.mu.Lock()
		defer lm.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(lm.held, key)
	}
	return unlock, nil
}

var _ domain.LockManager = (*LockManager)(nil)
