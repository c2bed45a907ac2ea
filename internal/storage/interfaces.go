// Package storage defines the persistence boundary for the item cache.
package storage

import "context"

// KVStore is a key/value store holding serialized cache snapshots.
// Implementations must deliver externally-originated changes (writes
// performed by another process or instance) through Watch.
type KVStore interface {
	// Get retrieves the value for key. Returns ErrNotFound if the key
	// has never been written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Watch returns a channel delivering the new value whenever key is
	// changed by a writer other than this store instance. The channel
	// is closed when ctx is cancelled or the store is closed.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	// Close releases the store's resources.
	Close() error
}

// ScanRecord is one row of scan telemetry.
type ScanRecord struct {
	ChainName    string
	Addresses    int
	ItemsFound   int
	DurationMs   int64
	Attempt      int
	ErrorMessage string
	ScannedAtMs  int64
}

// ScanLogStore is an append-only log of scan attempts.
type ScanLogStore interface {
	// Insert appends one scan record.
	Insert(ctx context.Context, r *ScanRecord) error

	// GetByChain retrieves records for a chain, ordered by time ASC.
	GetByChain(ctx context.Context, chainName string) ([]*ScanRecord, error)
}
