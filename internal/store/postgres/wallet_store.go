package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/h2olabs/dcabot/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint hit.
const uniqueViolation = "23505"

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a WalletStore backed by the given pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Create inserts a wallet. A second wallet for the same user reports
// domain.ErrAlreadyExists.
func (s *WalletStore) Create(ctx context.Context, w *domain.Wallet) error {
	const query = `
		INSERT INTO wallets (user_id, address, encrypted_key, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, w.UserID, w.Address, w.EncryptedKey, w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: wallet for user %d", domain.ErrAlreadyExists, w.UserID)
		}
		return fmt.Errorf("postgres: create wallet for user %d: %w", w.UserID, err)
	}
	return nil
}

// GetByUserID returns the user's wallet or domain.ErrNotFound.
func (s *WalletStore) GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, address, encrypted_key, created_at FROM wallets WHERE user_id = $1`,
		userID)

	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet for user %d", domain.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get wallet for user %d: %w", userID, err)
	}
	return w, nil
}

// GetByAddress returns the wallet owning address or domain.ErrNotFound.
// Addresses are stored checksummed; the lookup is case-insensitive.
func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, address, encrypted_key, created_at FROM wallets WHERE LOWER(address) = LOWER($1)`,
		address)

	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: wallet %s", domain.ErrNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get wallet %s: %w", address, err)
	}
	return w, nil
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.UserID, &w.Address, &w.EncryptedKey, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

var _ domain.WalletStore = (*WalletStore)(nil)
