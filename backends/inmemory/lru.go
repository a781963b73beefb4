package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/botirk38/chunkcache/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUBackend implements CacheBackend with least-recently-used eviction.
// Unlike FIFOBackend, a successful Get refreshes the entry's position.
// Expired entries are dropped when they are observed.
type LRUBackend struct {
	mu    sync.Mutex
	cache *lru.Cache[string, types.Entry]
	now   types.Clock
}

// NewLRUBackend creates a new LRU backend
func NewLRUBackend(config types.BackendConfig) (*LRUBackend, error) {
	if config.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	lruCache, err := lru.New[string, types.Entry](config.Capacity)
	if err != nil {
		return nil, err
	}

	return &LRUBackend{
		cache: lruCache,
		now:   config.Clock(),
	}, nil
}

// purgeExpired must be called with mu held.
func (b *LRUBackend) purgeExpired(now time.Time) {
	for _, key := range b.cache.Keys() {
		if e, ok := b.cache.Peek(key); ok && e.IsExpired(now) {
			b.cache.Remove(key)
		}
	}
}

// Set stores an entry in the LRU cache
func (b *LRUBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.purgeExpired(now)
	b.cache.Add(key, types.NewEntry(value, now, ttl))
	return nil
}

// Get retrieves an entry and marks it as recently used
func (b *LRUBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.IsExpired(b.now()) {
		b.cache.Remove(key)
		return nil, false, nil
	}
	return e.Value, true, nil
}

// Delete removes an entry from the LRU cache
func (b *LRUBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Remove(key)
	return nil
}

// Exists checks for a live entry without affecting recency
func (b *LRUBackend) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.cache.Peek(key)
	if !ok {
		return false, nil
	}
	if e.IsExpired(b.now()) {
		b.cache.Remove(key)
		return false, nil
	}
	return true, nil
}

// Flush clears all entries from the LRU cache
func (b *LRUBackend) Flush(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Purge()
	return nil
}

// Len returns the number of live entries
func (b *LRUBackend) Len(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.purgeExpired(b.now())
	return b.cache.Len(), nil
}

// Close closes the LRU backend (no-op for in-memory)
func (b *LRUBackend) Close() error {
	return nil
}
