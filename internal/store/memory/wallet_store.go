package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/h2olabs/dcabot/internal/domain"
)

// WalletStore keeps custodial wallet records in memory.
type WalletStore struct {
	mu      sync.RWMutex
	byUser  map[int64]*domain.Wallet
	byAddr  map[string]*domain.Wallet
}

// NewWalletStore creates an empty in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		byUser: make(map[int64]*domain.Wallet),
		byAddr: make(map[string]*domain.Wallet),
	}
}

// Create inserts a wallet; a second wallet for the same user is rejected.
func (s *WalletStore) Create(ctx context.Context, w *domain.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[w.UserID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *w
	cp.EncryptedKey = append([]byte(nil), w.EncryptedKey...)
	s.byUser[w.UserID] = &cp
	s.byAddr[strings.ToLower(w.Address)] = &cp
	return nil
}

// GetByUserID returns the wallet for a user, or domain.ErrNotFound.
func (s *WalletStore) GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// GetByAddress returns the wallet with the given address, or domain.ErrNotFound.
// Address comparison is case-insensitive.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.byAddr[strings.ToLower(address)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

var _ domain.WalletStore = (*WalletStore)(nil)
