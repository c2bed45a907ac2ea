package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"substrate-nft-lab/internal/storage"
)

func TestScanLogStore_InsertAndGetByChain(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScanLogStore(conn)
	ctx := context.Background()

	base := time.Now().UnixMilli()
	records := []*storage.ScanRecord{
		{ChainName: "statemine", Addresses: 2, ItemsFound: 5, DurationMs: 740, Attempt: 1, ScannedAtMs: base},
		{ChainName: "statemine", Addresses: 2, ItemsFound: 0, DurationMs: 3100, Attempt: 2, ErrorMessage: "dial statemine: connection refused", ScannedAtMs: base + 1000},
		{ChainName: "quartz", Addresses: 2, ItemsFound: 1, DurationMs: 420, Attempt: 1, ScannedAtMs: base + 500},
	}
	for _, r := range records {
		require.NoError(t, store.Insert(ctx, r))
	}

	got, err := store.GetByChain(ctx, "statemine")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by scan time ascending.
	assert.Equal(t, 1, got[0].Attempt)
	assert.Equal(t, 5, got[0].ItemsFound)
	assert.Empty(t, got[0].ErrorMessage)
	assert.Equal(t, 2, got[1].Attempt)
	assert.Equal(t, "dial statemine: connection refused", got[1].ErrorMessage)

	other, err := store.GetByChain(ctx, "quartz")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(420), other[0].DurationMs)
}

func TestScanLogStore_InsertInvalidInput(t *testing.T) {
	store := NewScanLogStore(nil)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &storage.ScanRecord{}), storage.ErrInvalidInput)
}

func TestScanLogStore_GetByChainEmpty(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewScanLogStore(conn)
	got, err := store.GetByChain(context.Background(), "never-scanned")
	require.NoError(t, err)
	assert.Empty(t, got)
}
