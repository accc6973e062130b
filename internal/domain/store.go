package domain

import (
	"context"
	"math/big"
	"time"
)

// PositionStore persists DCA positions. Save is an upsert keyed by position
// ID and must be atomic per identifier; read methods return empty results
// (never an error) when no data matches, except Get which reports ErrNotFound
// for a missing identifier.
type PositionStore interface {
	Save(ctx context.Context, pos *Position) error
	Get(ctx context.Context, id string) (*Position, error)
	GetByOwner(ctx context.Context, owner string) ([]*Position, error)
	GetActive(ctx context.Context) ([]*Position, error)
	// Delete removes a position outright. Administrative only; the lifecycle
	// engine closes positions, it never deletes them.
	Delete(ctx context.Context, id string) error
}

// ExecutionStore persists per-period execution records.
type ExecutionStore interface {
	Insert(ctx context.Context, rec *ExecutionRecord) error
	ListByPosition(ctx context.Context, positionID string, limit int) ([]*ExecutionRecord, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]*ExecutionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WalletStore persists custodial wallet records.
type WalletStore interface {
	Create(ctx context.Context, w *Wallet) error
	GetByUserID(ctx context.Context, userID int64) (*Wallet, error)
	GetByAddress(ctx context.Context, address string) (*Wallet, error)
}

// Route is an opaque swap plan produced by the router service. ExpectedOut is
// the quoted target amount for the requested input.
type Route struct {
	ID          string
	FromToken   string
	ToToken     string
	AmountIn    *big.Int
	ExpectedOut *big.Int
	// Path is the venue hop list, informational only.
	Path []string
}

// SwapResult is the outcome of a materialized swap.
type SwapResult struct {
	AmountOut *big.Int
	TxHash    string
}

// RouterClient finds and executes swap paths on the external aggregator.
// Every failure is transient from the engine's point of view: state is left
// untouched and the swap is retried on the next scheduler sweep.
type RouterClient interface {
	FindBestRoute(ctx context.Context, fromToken, toToken string, amountIn *big.Int) (*Route, error)
	ExecuteSwap(ctx context.Context, route *Route, amountIn *big.Int) (*SwapResult, error)
}

// VaultState is the aggregate on-chain state of the yield vault.
type VaultState struct {
	TotalAssets      *big.Int
	TotalDeposited   *big.Int
	TotalWithdrawn   *big.Int
	TotalYieldEarned *big.Int
	FetchedAt        time.Time
}

// UserAssets is one owner's stake in the yield vault.
type UserAssets struct {
	Owner        string
	Shares       *big.Int
	AssetBalance *big.Int // shares converted to underlying stablecoin units
}

// VaultClient reads the yield vault's on-chain state. Used only by the
// reporting path, never by execution accounting.
type VaultClient interface {
	GetVaultState(ctx context.Context) (*VaultState, error)
	GetUserAssets(ctx context.Context, owner string) (*UserAssets, error)
}

// YieldBreakdown is the estimated (not authoritative) yield view of a
// position.
type YieldBreakdown struct {
	TotalInvested *big.Int
	CurrentValue  *big.Int
	TotalYield    *big.Int
	APYBps        int // annual rate in basis points
}

// LockManager provides exclusive locks keyed by arbitrary strings, used to
// serialize mutations on a single position identifier.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is already owned elsewhere.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Clock abstracts wall-clock reads so schedules are testable.
type Clock interface {
	Now() time.Time
}
