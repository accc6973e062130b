package wallet

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2olabs/dcabot/internal/crypto"
	"github.com/h2olabs/dcabot/internal/domain"
	"github.com/h2olabs/dcabot/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newService(t *testing.T) *Service {
	t.Helper()
	sealer, err := crypto.NewKeyManager("test-master-password")
	require.NoError(t, err)
	clock := fixedClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(memory.NewWalletStore(), sealer, clock, slog.Default())
}

func TestGetOrCreateGeneratesWallet(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, int64(42), w.UserID)
	assert.True(t, strings.HasPrefix(w.Address, "0x"))
	assert.Len(t, w.Address, 42)
	assert.NotEmpty(t, w.EncryptedKey)
}

func TestGetOrCreateIsStable(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	second, err := svc.GetOrCreate(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, first.Address, second.Address)
}

func TestExportKeyRoundTrips(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, 1)
	require.NoError(t, err)

	key, err := svc.ExportKey(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.NotContains(t, string(w.EncryptedKey), string(key))
}

func TestGetMissingWallet(t *testing.T) {
	svc := newService(t)
	_, err := svc.Get(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
