package clickhouse

import (
	"context"
	"fmt"

	"substrate-nft-lab/internal/storage"
)

// ScanLogStore implements storage.ScanLogStore using ClickHouse.
type ScanLogStore struct {
	conn *Conn
}

// NewScanLogStore creates a new ScanLogStore.
func NewScanLogStore(conn *Conn) *ScanLogStore {
	return &ScanLogStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScanLogStore = (*ScanLogStore)(nil)

// Insert appends one scan record.
func (s *ScanLogStore) Insert(ctx context.Context, r *storage.ScanRecord) error {
	if r == nil || r.ChainName == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO scan_log (
			chain_name, addresses, items_found, duration_ms, attempt, error_message, scanned_at_ms
		)
	`
	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		r.ChainName, uint32(r.Addresses), uint32(r.ItemsFound),
		uint64(r.DurationMs), uint8(r.Attempt), r.ErrorMessage, uint64(r.ScannedAtMs),
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByChain retrieves records for a chain, ordered by time ASC.
func (s *ScanLogStore) GetByChain(ctx context.Context, chainName string) ([]*storage.ScanRecord, error) {
	query := `
		SELECT chain_name, addresses, items_found, duration_ms, attempt, error_message, scanned_at_ms
		FROM scan_log
		WHERE chain_name = ?
		ORDER BY scanned_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, chainName)
	if err != nil {
		return nil, fmt.Errorf("query scan log: %w", err)
	}
	defer rows.Close()

	var records []*storage.ScanRecord
	for rows.Next() {
		var (
			r          storage.ScanRecord
			addresses  uint32
			itemsFound uint32
			durationMs uint64
			attempt    uint8
			scannedAt  uint64
		)
		err := rows.Scan(&r.ChainName, &addresses, &itemsFound, &durationMs, &attempt, &r.ErrorMessage, &scannedAt)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Addresses = int(addresses)
		r.ItemsFound = int(itemsFound)
		r.DurationMs = int64(durationMs)
		r.Attempt = int(attempt)
		r.ScannedAtMs = int64(scannedAt)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}
