package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/botirk38/chunkcache/types"
)

// ErrInvalidCapacity is returned when a bounded backend is configured without room.
var ErrInvalidCapacity = errors.New("capacity must be positive")

type fifoEntry struct {
	types.Entry
	seq uint64
}

// FIFOBackend is a bounded in-process backend that evicts by creation order.
//
// When a Set pushes the entry count past capacity, the entry with the oldest
// creation timestamp is removed. Reads do not refresh an entry's position, so
// this is not LRU; see LRUBackend for recency-based eviction. Overwriting a
// key restamps its creation time.
//
// Every operation first purges expired entries. One mutex guards all state.
type FIFOBackend struct {
	mu       sync.Mutex
	entries  map[string]*fifoEntry
	capacity int
	seq      uint64
	now      types.Clock
}

// NewFIFOBackend creates a new FIFO backend
func NewFIFOBackend(config types.BackendConfig) (*FIFOBackend, error) {
	if config.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &FIFOBackend{
		entries:  make(map[string]*fifoEntry),
		capacity: config.Capacity,
		now:      config.Clock(),
	}, nil
}

// purgeExpired must be called with mu held.
func (b *FIFOBackend) purgeExpired(now time.Time) {
	for key, e := range b.entries {
		if e.IsExpired(now) {
			delete(b.entries, key)
		}
	}
}

// evictOldest must be called with mu held. Ties on creation time fall back
// to insertion order.
func (b *FIFOBackend) evictOldest() {
	var (
		oldestKey string
		oldest    *fifoEntry
	)
	for key, e := range b.entries {
		if oldest == nil ||
			e.CreatedAt.Before(oldest.CreatedAt) ||
			(e.CreatedAt.Equal(oldest.CreatedAt) && e.seq < oldest.seq) {
			oldestKey, oldest = key, e
		}
	}
	if oldest != nil {
		delete(b.entries, oldestKey)
	}
}

// Set stores an entry, evicting the oldest one if capacity is exceeded
func (b *FIFOBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.purgeExpired(now)

	b.seq++
	b.entries[key] = &fifoEntry{Entry: types.NewEntry(value, now, ttl), seq: b.seq}

	if len(b.entries) > b.capacity {
		b.evictOldest()
	}
	return nil
}

// Get retrieves a live entry
func (b *FIFOBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())
	if e, ok := b.entries[key]; ok {
		return e.Value, true, nil
	}
	return nil, false, nil
}

// Delete removes an entry
func (b *FIFOBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())
	delete(b.entries, key)
	return nil
}

// Exists checks if a live entry is stored under key
func (b *FIFOBackend) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())
	_, ok := b.entries[key]
	return ok, nil
}

// Flush clears all entries
func (b *FIFOBackend) Flush(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make(map[string]*fifoEntry)
	return nil
}

// Len returns the number of live entries
func (b *FIFOBackend) Len(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())
	return len(b.entries), nil
}

// Close closes the FIFO backend (no-op for in-memory)
func (b *FIFOBackend) Close() error {
	return nil
}
