// Package wallet manages the custodial signing wallets that back user
// positions. Keys are generated in process, sealed immediately, and only the
// sealed blob is persisted.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/h2olabs/dcabot/internal/domain"
)

// KeySealer seals and unseals raw private key bytes.
type KeySealer interface {
	Seal(keyBytes []byte) ([]byte, error)
	Unseal(sealed []byte) ([]byte, error)
}

// Service is the custodial wallet registry.
type Service struct {
	store  domain.WalletStore
	sealer KeySealer
	clock  domain.Clock
	logger *slog.Logger
}

// NewService creates a wallet Service.
func NewService(store domain.WalletStore, sealer KeySealer, clock domain.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		sealer: sealer,
		clock:  clock,
		logger: logger.With(slog.String("component", "wallet")),
	}
}

// GetOrCreate returns the user's wallet, generating and persisting a new one
// on first use. Creation races between two callers resolve to whichever
// insert lands first; the loser re-reads.
func (s *Service) GetOrCreate(ctx context.Context, userID int64) (*domain.Wallet, error) {
	w, err := s.store.GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("wallet: get for user %d: %w", userID, err)
	}

	w, err = s.create(ctx, userID)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return s.store.GetByUserID(ctx, userID)
	}
	return w, err
}

// Get returns the user's wallet or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.store.GetByUserID(ctx, userID)
}

// ExportKey unseals the wallet's private key and returns the raw bytes. The
// caller owns zeroing them after use.
func (s *Service) ExportKey(ctx context.Context, userID int64) ([]byte, error) {
	w, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("wallet: export for user %d: %w", userID, err)
	}
	keyBytes, err := s.sealer.Unseal(w.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: unseal for user %d: %w", userID, err)
	}
	return keyBytes, nil
}

func (s *Service) create(ctx context.Context, userID int64) (*domain.Wallet, error) {
	priv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generating key: %w", err)
	}
	keyBytes := ethcrypto.FromECDSA(priv)
	address := ethcrypto.PubkeyToAddress(priv.PublicKey).Hex()

	sealed, err := s.sealer.Seal(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("wallet: sealing key: %w", err)
	}
	for i := range keyBytes {
		keyBytes[i] = 0
	}

	w := &domain.Wallet{
		UserID:       userID,
		Address:      address,
		EncryptedKey: sealed,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("wallet: persisting wallet for user %d: %w", userID, err)
	}

	s.logger.InfoContext(ctx, "wallet created",
		slog.Int64("user_id", userID),
		slog.String("address", address),
	)
	return w, nil
}
