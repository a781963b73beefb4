package chunkcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/metrics"
	"github.com/botirk38/chunkcache/options"
	"github.com/botirk38/chunkcache/types"
	"golang.org/x/sync/singleflight"
)

// CacheManager memoizes operations on top of a single backend it owns.
// It is safe for concurrent use when its backend is.
type CacheManager struct {
	name    string
	backend types.CacheBackend
	keyer   *Keyer
	log     logger.Logger
	metrics *metrics.Metrics
	flight  singleflight.Group
}

// Func is an operation that can be memoized with Cached.
type Func[A, V any] func(ctx context.Context, arg A) (V, error)

// Func2 is a two-argument operation that can be memoized with Cached2.
type Func2[A, B, V any] func(ctx context.Context, a A, b B) (V, error)

// Call carries the positional and keyword arguments of a CachedCall.
type Call struct {
	Args   []any
	Kwargs map[string]any
}

// New creates a CacheManager with functional options.
func New(opts ...options.Option) (*CacheManager, error) {
	cfg := options.NewConfig()

	if err := cfg.Apply(opts...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return NewCacheManager(cfg.Name, cfg.Backend, cfg.Logger, cfg.Metrics)
}

// NewCacheManager creates a manager owning backend. log and m may be nil.
func NewCacheManager(name string, backend types.CacheBackend, log logger.Logger, m *metrics.Metrics) (*CacheManager, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if name == "" {
		name = "default"
	}
	log = logger.OrDiscard(log).With("cache", name)

	return &CacheManager{
		name:    name,
		backend: backend,
		keyer:   NewKeyer(log),
		log:     log,
		metrics: m,
	}, nil
}

// Name identifies the manager in logs and metrics.
func (m *CacheManager) Name() string {
	return m.name
}

// Key derives the cache key for a call with the given arguments.
func (m *CacheManager) Key(args []any, kwargs map[string]any) string {
	key, _ := m.keyer.Key(args, kwargs)
	return key
}

// Get retrieves the raw value stored under key.
func (m *CacheManager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return m.backend.Get(ctx, key)
}

// Set stores a raw value under key. A zero ttl never expires.
func (m *CacheManager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.backend.Set(ctx, key, value, ttl)
}

// Delete removes key.
func (m *CacheManager) Delete(ctx context.Context, key string) error {
	return m.backend.Delete(ctx, key)
}

// Exists reports whether a live entry is stored under key.
func (m *CacheManager) Exists(ctx context.Context, key string) (bool, error) {
	return m.backend.Exists(ctx, key)
}

// Flush clears the backend.
func (m *CacheManager) Flush(ctx context.Context) error {
	return m.backend.Flush(ctx)
}

// Len returns the number of live entries.
func (m *CacheManager) Len(ctx context.Context) (int, error) {
	return m.backend.Len(ctx)
}

// Close closes the owned backend.
func (m *CacheManager) Close() error {
	return m.backend.Close()
}

// Cached wraps fn so that calls with equal arguments reuse a stored result.
// Errors are returned but never stored.
func Cached[A, V any](m *CacheManager, ttl time.Duration, fn Func[A, V]) Func[A, V] {
	return func(ctx context.Context, arg A) (V, error) {
		return memoize(ctx, m, ttl, []any{arg}, nil, func(ctx context.Context) (V, error) {
			return fn(ctx, arg)
		})
	}
}

// Cached2 is Cached for two-argument operations.
func Cached2[A, B, V any](m *CacheManager, ttl time.Duration, fn Func2[A, B, V]) Func2[A, B, V] {
	return func(ctx context.Context, a A, b B) (V, error) {
		return memoize(ctx, m, ttl, []any{a, b}, nil, func(ctx context.Context) (V, error) {
			return fn(ctx, a, b)
		})
	}
}

// CachedCall is Cached for operations taking free-form positional and
// keyword arguments.
func CachedCall[V any](m *CacheManager, ttl time.Duration, fn Func[Call, V]) Func[Call, V] {
	return func(ctx context.Context, call Call) (V, error) {
		return memoize(ctx, m, ttl, call.Args, call.Kwargs, func(ctx context.Context) (V, error) {
			return fn(ctx, call)
		})
	}
}

// memoize serves the call from the backend when possible. A hit is a single
// successful Get, so there is no window between an existence check and the
// read. Concurrent misses on the same key run invoke once.
func memoize[V any](
	ctx context.Context,
	m *CacheManager,
	ttl time.Duration,
	args []any,
	kwargs map[string]any,
	invoke func(context.Context) (V, error),
) (V, error) {
	key := m.Key(args, kwargs)

	if v, ok := load[V](ctx, m, key); ok {
		return v, nil
	}

	res, err, _ := m.flight.Do(key, func() (any, error) {
		if v, ok := load[V](ctx, m, key); ok {
			return v, nil
		}
		m.metrics.Miss(m.name)

		v, err := invoke(ctx)
		if err != nil {
			return v, err
		}
		store(ctx, m, key, v, ttl)
		return v, nil
	})

	v, _ := res.(V)
	return v, err
}

// load decodes the value stored under key. Backend failures and undecodable
// values are treated as a miss; the latter is also evicted.
func load[V any](ctx context.Context, m *CacheManager, key string) (V, bool) {
	var zero V

	raw, found, err := m.backend.Get(ctx, key)
	if err != nil {
		m.metrics.Error(m.name, "get")
		m.log.Warn("Cache read failed", "key", shortKey(key), "error", err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		m.metrics.Error(m.name, "decode")
		m.log.Warn("Evicting undecodable cache entry", "key", shortKey(key), "error", err)
		if err := m.backend.Delete(ctx, key); err != nil {
			m.log.Warn("Failed to evict cache entry", "key", shortKey(key), "error", err)
		}
		return zero, false
	}

	m.metrics.Hit(m.name)
	m.log.Debug("Cache hit", "key", shortKey(key))
	return v, true
}

func store[V any](ctx context.Context, m *CacheManager, key string, v V, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		m.metrics.Error(m.name, "encode")
		m.log.Warn("Result not cacheable", "key", shortKey(key), "error", err)
		return
	}
	if err := m.backend.Set(ctx, key, raw, ttl); err != nil {
		m.metrics.Error(m.name, "set")
		m.log.Warn("Cache write failed", "key", shortKey(key), "error", err)
	}
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
