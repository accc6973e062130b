package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2olabs/dcabot/internal/domain"
)

func newTestPosition(id, owner string, status domain.Status) *domain.Position {
	return &domain.Position{
		ID:              id,
		Owner:           owner,
		SourceToken:     "0xusdc",
		TargetTokens:    []domain.TokenAllocation{{Token: "0xweth", Symbol: "WETH", Percent: 100}},
		AmountPerPeriod: big.NewInt(100_000000),
		Interval:        domain.IntervalWeekly,
		TotalPeriods:    4,
		TotalInvested:   big.NewInt(0),
		TotalAcquired:   big.NewInt(0),
		AveragePrice:    big.NewInt(0),
		Status:          status,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
}

func TestPositionStoreSaveGet(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	pos := newTestPosition("p1", "0xabc", domain.StatusActive)
	require.NoError(t, store.Save(ctx, pos))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, "0xabc", got.Owner)

	// Mutating the returned copy must not touch the stored record.
	got.TotalInvested.SetInt64(999)
	got.Status = domain.StatusClosed
	again, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, again.TotalInvested.Sign())
	assert.Equal(t, domain.StatusActive, again.Status)
}

func TestPositionStoreGetMissing(t *testing.T) {
	store := NewPositionStore()
	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionStoreOwnerAndActiveQueries(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	require.NoError(t, store.Save(ctx, newTestPosition("p1", "0xabc", domain.StatusActive)))
	require.NoError(t, store.Save(ctx, newTestPosition("p2", "0xabc", domain.StatusPaused)))
	require.NoError(t, store.Save(ctx, newTestPosition("p3", "0xdef", domain.StatusActive)))

	mine, err := store.GetByOwner(ctx, "0xabc")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := store.GetByOwner(ctx, "0x000")
	require.NoError(t, err)
	assert.Empty(t, none)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, pos := range active {
		assert.Equal(t, domain.StatusActive, pos.Status)
	}
}

func TestPositionStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	require.NoError(t, store.Save(ctx, newTestPosition("p1", "0xabc", domain.StatusActive)))
	require.NoError(t, store.Delete(ctx, "p1"))

	_, err := store.Get(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting twice is harmless.
	require.NoError(t, store.Delete(ctx, "p1"))
}
