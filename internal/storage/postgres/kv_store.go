package postgres

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"substrate-nft-lab/internal/storage"
)

// changeChannel is the LISTEN/NOTIFY channel carrying cache-key changes.
const changeChannel = "nft_cache_changes"

// KVStore implements storage.KVStore on a single-row-per-key table.
// Cross-instance change delivery uses LISTEN/NOTIFY: every write
// notifies with "key writerID", and watchers re-read the value when a
// notification from a foreign writer arrives. The payload carries only
// the key because NOTIFY payloads are too small for cache snapshots.
type KVStore struct {
	pool     *Pool
	writerID string
	logger   *log.Logger

	cancel context.CancelFunc
	done   chan struct{}

	watchers chan watchRequest
}

type watchRequest struct {
	key string
	ch  chan []byte
}

// NewKVStore creates a KVStore and starts its notification listener.
func NewKVStore(ctx context.Context, pool *Pool, logger *log.Logger) (*KVStore, error) {
	if logger == nil {
		logger = log.Default()
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s := &KVStore{
		pool:     pool,
		writerID: uuid.NewString(),
		logger:   logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		watchers: make(chan watchRequest),
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		cancel()
		return nil, fmt.Errorf("listen on %s: %w", changeChannel, err)
	}

	go s.listenLoop(listenCtx, conn)
	return s, nil
}

var _ storage.KVStore = (*KVStore)(nil)

// Get retrieves the value for key. Returns ErrNotFound if never written.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM nft_cache WHERE key = $1`

	var value []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&value); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cache value: %w", err)
	}
	return value, nil
}

// Set upserts the value for key and notifies other instances.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO nft_cache (key, value, writer_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, writer_id = EXCLUDED.writer_id, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, key, value, s.writerID); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrWriteFailed, err)
	}

	payload := key + " " + s.writerID
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", changeChannel, payload); err != nil {
		// The row is written; a lost notification only delays other
		// instances until their next read.
		s.logger.Printf("[postgres] notify failed for key %s: %v", key, err)
	}
	return nil
}

// Watch returns a channel delivering values written by other instances.
func (s *KVStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	ch := make(chan []byte, 8)
	select {
	case s.watchers <- watchRequest{key: key, ch: ch}:
		return ch, nil
	case <-s.done:
		return nil, storage.ErrWriteFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener and closes watcher channels.
func (s *KVStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// listenLoop owns the dedicated LISTEN connection and the watcher set.
// Watchers are registered through s.watchers so no extra lock is needed.
func (s *KVStore) listenLoop(ctx context.Context, conn *pgxpool.Conn) {
	defer close(s.done)
	defer conn.Release()

	byKey := make(map[string][]chan []byte)
	defer func() {
		for _, chans := range byKey {
			for _, ch := range chans {
				close(ch)
			}
		}
	}()

	notifications := make(chan *pgconn.Notification)
	go func() {
		defer close(notifications)
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Printf("[postgres] notification listener stopped: %v", err)
				}
				return
			}
			select {
			case notifications <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-s.watchers:
			byKey[req.key] = append(byKey[req.key], req.ch)

		case n, ok := <-notifications:
			if !ok {
				return
			}
			key, writer, found := strings.Cut(n.Payload, " ")
			if !found || writer == s.writerID {
				continue
			}
			chans := byKey[key]
			if len(chans) == 0 {
				continue
			}
			value, err := s.Get(ctx, key)
			if err != nil {
				s.logger.Printf("[postgres] re-read after change failed for key %s: %v", key, err)
				continue
			}
			for _, ch := range chans {
				select {
				case ch <- value:
				default:
					// Watcher is not draining; drop rather than block.
				}
			}
		}
	}
}
