// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sync"

	"substrate-nft-lab/internal/storage"
)

// KVStore is an in-memory implementation of storage.KVStore.
type KVStore struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[string][]chan []byte
	closed   bool
}

// NewKVStore creates a new in-memory key/value store.
func NewKVStore() *KVStore {
	return &KVStore{
		values:   make(map[string][]byte),
		watchers: make(map[string][]chan []byte),
	}
}

var _ storage.KVStore = (*KVStore)(nil)

// Get retrieves the value for key. Returns ErrNotFound if never written.
func (s *KVStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.values[key]
	if !exists {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set writes the value for key. Writes through this instance do not
// fire its own watchers; Watch only reports external changes.
func (s *KVStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrWriteFailed
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

// Watch returns a channel delivering externally-originated changes for key.
func (s *KVStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrWriteFailed
	}

	ch := make(chan []byte, 8)
	s.watchers[key] = append(s.watchers[key], ch)

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.removeWatcher(key, ch)
	}()

	return ch, nil
}

// NotifyExternal simulates a write performed by another store instance
// sharing the same backing key. The value is stored and all watchers
// are notified.
func (s *KVStore) NotifyExternal(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v

	for _, ch := range s.watchers[key] {
		select {
		case ch <- v:
		default:
			// Watcher is not draining; drop rather than block.
		}
	}
}

// Close closes all watcher channels and marks the store unusable.
func (s *KVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for key, chans := range s.watchers {
		for _, ch := range chans {
			close(ch)
		}
		delete(s.watchers, key)
	}
	return nil
}

// removeWatcher must be called with mu held.
func (s *KVStore) removeWatcher(key string, ch chan []byte) {
	if s.closed {
		return
	}
	chans := s.watchers[key]
	for i, c := range chans {
		if c == ch {
			s.watchers[key] = append(chans[:i], chans[i+1:]...)
			close(ch)
			return
		}
	}
}
