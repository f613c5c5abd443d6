package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_trade_ai/internal/domain"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")
	store := NewFileStore(path)
	ctx := context.Background()

	snap := &domain.Snapshot{
		Open: []*domain.Position{
			{
				ID:         "pos-1",
				Pair:       "ETH/USD",
				EntryPrice: 3000,
				Volume:     1,
				EntryTime:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				PeakProfit: 42.5,
				Status:     domain.StatusOpen,
				PyramidLevels: []domain.PyramidLevel{
					{Level: 1, EntryPrice: 3135, Volume: 0.5, TriggerProfitPct: 4.5, Status: "active"},
				},
			},
		},
		Closed: []*domain.Position{
			{ID: "pos-0", Pair: "BTC/USD", CurrentProfit: -12.3, Status: domain.StatusClosed, ExitReason: domain.ExitStopLoss},
		},
		Timestamp: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	require.Len(t, loaded.Open, 1)
	assert.Equal(t, "pos-1", loaded.Open[0].ID)
	assert.Equal(t, 42.5, loaded.Open[0].PeakProfit)
	require.Len(t, loaded.Open[0].PyramidLevels, 1)
	assert.Equal(t, 3135.0, loaded.Open[0].PyramidLevels[0].EntryPrice)
	require.Len(t, loaded.Closed, 1)
	assert.Equal(t, domain.ExitStopLoss, loaded.Closed[0].ExitReason)
	assert.True(t, snap.Timestamp.Equal(loaded.Timestamp))
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewFileStore(path)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Snapshot{Timestamp: time.Now()}))
	require.NoError(t, store.Save(ctx, &domain.Snapshot{
		Closed:    []*domain.Position{{ID: "only", Pair: "ETH/USD"}},
		Timestamp: time.Now(),
	}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Closed, 1)
	assert.Equal(t, "only", loaded.Closed[0].ID)
}
