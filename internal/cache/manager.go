// Package cache is the authoritative, observable, persisted store of
// items per address.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"substrate-nft-lab/internal/domain"
	"substrate-nft-lab/internal/observability"
	"substrate-nft-lab/internal/storage"
)

// StorageKey is the key the full cache snapshot is persisted under.
const StorageKey = "nft-items"

// DefaultDebounce is the write-coalescing window. The timer resets on
// every mutation, so only the trailing edge of a mutation burst writes.
const DefaultDebounce = time.Second

// Subscriber receives one callback per notifying mutation, per changed
// address. Callbacks run synchronously inside the mutating call; a
// panicking subscriber is recovered and logged without affecting the
// others.
type Subscriber interface {
	OnItemsChanged(address string, items []domain.ItemInformation)
}

// Options configures Manager.
type Options struct {
	Debounce time.Duration
	Logger   *log.Logger
}

// Manager holds the per-address item lists. Construction immediately
// begins an asynchronous load from the store; reads before the load
// completes report "not known yet" rather than "empty".
type Manager struct {
	store    storage.KVStore
	debounce time.Duration
	logger   *log.Logger

	mu          sync.Mutex
	items       map[string][]domain.ItemInformation
	ready       bool
	subscribers []Subscriber
	writeTimer  *time.Timer
	destroyed   bool

	initDone chan struct{}
	initErr  error

	watchCancel context.CancelFunc
}

// NewManager creates a Manager and starts loading persisted state.
func NewManager(store storage.KVStore, opts Options) *Manager {
	m := &Manager{
		store:    store,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		items:    make(map[string][]domain.ItemInformation),
		initDone: make(chan struct{}),
	}
	if m.debounce <= 0 {
		m.debounce = DefaultDebounce
	}
	if m.logger == nil {
		m.logger = log.Default()
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	m.watchCancel = cancel

	go m.load(watchCtx)
	return m
}

// load reads the persisted snapshot and then starts watching for
// externally-originated changes. A load failure leaves the cache empty
// but writable; the error surfaces through WaitForInitialization.
func (m *Manager) load(ctx context.Context) {
	defer close(m.initDone)

	value, err := m.store.Get(ctx, StorageKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First run; nothing persisted yet.
	case err != nil:
		m.logger.Printf("[cache] load failed: %v", err)
		m.initErr = fmt.Errorf("load cache snapshot: %w", err)
	default:
		var loaded map[string][]domain.ItemInformation
		if err := json.Unmarshal(value, &loaded); err != nil {
			m.logger.Printf("[cache] corrupt snapshot discarded: %v", err)
			m.initErr = fmt.Errorf("decode cache snapshot: %w", err)
		} else {
			m.mu.Lock()
			m.items = loaded
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()

	go m.watch(ctx)
}

// WaitForInitialization blocks until the initial load completes. Every
// current and future caller observes the same load error, if any.
func (m *Manager) WaitForInitialization(ctx context.Context) error {
	select {
	case <-m.initDone:
		return m.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns the items for address. known is false both before the
// initial load completes and for an address that has never been
// populated; a populated address with zero items returns an empty
// slice with known true. Callers must not mutate the returned slice.
func (m *Manager) Get(address string) (items []domain.ItemInformation, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, false
	}
	items, known = m.items[address]
	return items, known
}

// GetAll returns a shallow copy of the full address-keyed item map.
func (m *Manager) GetAll() map[string][]domain.ItemInformation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]domain.ItemInformation, len(m.items))
	for address, items := range m.items {
		out[address] = items
	}
	return out
}

// SetOnChainItems appends genuinely-new records per address, keyed by
// item identity. Existing entries are never replaced or reordered. An
// address whose list gained nothing triggers neither a write nor a
// notification.
func (m *Manager) SetOnChainItems(batch map[string][]domain.ItemOnChainInfo) {
	type change struct {
		address string
		items   []domain.ItemInformation
	}
	var changes []change

	m.mu.Lock()
	for address, incoming := range batch {
		existing := m.items[address]
		seen := make(map[domain.ItemKey]bool, len(existing))
		for i := range existing {
			seen[existing[i].Key()] = true
		}

		grew := false
		for _, record := range incoming {
			if seen[record.Key()] {
				continue
			}
			seen[record.Key()] = true
			existing = append(existing, domain.ItemInformation{ItemOnChainInfo: record})
			grew = true
		}
		if !grew {
			// Ensure a scanned-but-empty address is still marked known.
			if _, ok := m.items[address]; !ok {
				m.items[address] = existing
			}
			continue
		}
		m.items[address] = existing
		changes = append(changes, change{address: address, items: existing})
	}
	if len(changes) > 0 {
		m.scheduleWriteLocked()
	}
	observability.UpdateCachedAddresses(len(m.items))
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()

	for _, c := range changes {
		m.notify(subscribers, c.address, c.items)
	}
}

// SetItemDetail merges detail into the item identified by key within
// address's list. A missing item is a no-op: an item's on-chain record
// must exist before detail can attach. A nil detail records the
// terminal no-data state instead of erasing fields.
func (m *Manager) SetItemDetail(address string, key domain.ItemKey, detail *domain.ItemMetadata) {
	m.mu.Lock()
	items := m.items[address]
	found := false
	for i := range items {
		if items[i].Key() == key {
			items[i].MergeDetail(detail)
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return
	}
	m.scheduleWriteLocked()
	subscribers := m.snapshotSubscribersLocked()
	m.mu.Unlock()

	m.notify(subscribers, address, items)
}

// Subscribe registers subscriber for change notifications.
func (m *Manager) Subscribe(subscriber Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, subscriber)
}

// Unsubscribe removes a previously registered subscriber.
func (m *Manager) Unsubscribe(subscriber Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subscribers {
		if s == subscriber {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Destroy detaches from the change-event source, cancels any pending
// write, and clears in-memory state. Intended for teardown, not normal
// operation.
func (m *Manager) Destroy() {
	m.watchCancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	if m.writeTimer != nil {
		m.writeTimer.Stop()
		m.writeTimer = nil
	}
	m.items = make(map[string][]domain.ItemInformation)
	m.subscribers = nil
}

func (m *Manager) snapshotSubscribersLocked() []Subscriber {
	out := make([]Subscriber, len(m.subscribers))
	copy(out, m.subscribers)
	return out
}

// notify delivers synchronously, once per subscriber, recovering panics
// so one bad subscriber cannot break delivery to the rest.
func (m *Manager) notify(subscribers []Subscriber, address string, items []domain.ItemInformation) {
	for _, subscriber := range subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Printf("[cache] subscriber panicked for %s: %v", address, r)
				}
			}()
			subscriber.OnItemsChanged(address, items)
			observability.RecordCacheNotification()
		}()
	}
}

// scheduleWriteLocked arms the trailing-edge debounce timer, resetting
// it if already armed. The payload is the full state at fire time, so
// collapsed intermediate states never need to be written.
func (m *Manager) scheduleWriteLocked() {
	if m.destroyed {
		return
	}
	if m.writeTimer != nil {
		m.writeTimer.Reset(m.debounce)
		return
	}
	m.writeTimer = time.AfterFunc(m.debounce, m.persist)
}

// persist writes the full current snapshot. A write failure is logged;
// in-memory state is the source of truth for the session and is never
// rolled back.
func (m *Manager) persist() {
	m.mu.Lock()
	m.writeTimer = nil
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	payload, err := json.Marshal(m.items)
	m.mu.Unlock()
	if err != nil {
		m.logger.Printf("[cache] snapshot encode failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = m.store.Set(ctx, StorageKey, payload)
	observability.RecordCacheWrite(err)
	if err != nil {
		m.logger.Printf("[cache] persist failed: %v", fmt.Errorf("%w: %v", storage.ErrWriteFailed, err))
	}
}

// watch replaces in-memory state wholesale when another instance writes
// the same key, then re-notifies every address. This keeps concurrent
// surfaces consistent without shared memory.
func (m *Manager) watch(ctx context.Context) {
	updates, err := m.store.Watch(ctx, StorageKey)
	if err != nil {
		m.logger.Printf("[cache] watch unavailable: %v", err)
		return
	}

	for value := range updates {
		var replacement map[string][]domain.ItemInformation
		if err := json.Unmarshal(value, &replacement); err != nil {
			m.logger.Printf("[cache] external change discarded: %v", err)
			continue
		}

		m.mu.Lock()
		if m.destroyed {
			m.mu.Unlock()
			return
		}
		m.items = replacement
		observability.UpdateCachedAddresses(len(m.items))
		subscribers := m.snapshotSubscribersLocked()
		m.mu.Unlock()

		for address, items := range replacement {
			m.notify(subscribers, address, items)
		}
	}
}
