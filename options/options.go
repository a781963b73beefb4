// Package options provides functional options for configuring CacheManager instances.
package options

import (
	"errors"

	"github.com/botirk38/chunkcache/backends"
	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/metrics"
	"github.com/botirk38/chunkcache/types"
	"github.com/prometheus/client_golang/prometheus"
)

// Option represents a configuration option for CacheManager
type Option func(*Config) error

// Config holds the configuration for building a CacheManager
type Config struct {
	Name    string
	Backend types.CacheBackend
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{Name: "default"}
}

// Apply applies all the given options to the config
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend == nil {
		return errors.New("backend is required - use WithMemoryBackend, WithFileBackend, etc.")
	}
	return nil
}

// WithName labels the manager in logs and metrics
func WithName(name string) Option {
	return func(cfg *Config) error {
		if name == "" {
			return errors.New("name cannot be empty")
		}
		cfg.Name = name
		return nil
	}
}

// WithLogger sets the logger. Apply it before file backend options so the
// backend reports corrupt records through it.
func WithLogger(l logger.Logger) Option {
	return func(cfg *Config) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.Logger = l
		return nil
	}
}

// WithMetrics records hits, misses and errors on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(cfg *Config) error {
		cfg.Metrics = m
		return nil
	}
}

// WithPrometheus creates the collectors and registers them on reg
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(cfg *Config) error {
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		cfg.Metrics = m
		return nil
	}
}

// WithMemoryBackend sets up a bounded in-memory backend evicting by creation order
func WithMemoryBackend(capacity int) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewMemoryBackend(types.BackendConfig{
			Capacity: capacity,
		})
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithLRUBackend sets up an LRU in-memory backend
func WithLRUBackend(capacity int) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewLRUBackend(types.BackendConfig{
			Capacity: capacity,
		})
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithFileBackend sets up a persistent backend under dir
func WithFileBackend(dir string) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewFileBackend(types.BackendConfig{
			Directory: dir,
		}, cfg.Logger)
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithRedisBackend sets up a Redis backend
func WithRedisBackend(addr string, db int) Option {
	return func(cfg *Config) error {
		backend, err := backends.NewRedisBackend(types.BackendConfig{
			ConnectionString: addr,
			Database:         db,
		})
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithBackendConfig builds a backend through the factory
func WithBackendConfig(backendType types.BackendType, config types.BackendConfig) Option {
	return func(cfg *Config) error {
		factory := &backends.BackendFactory{Logger: cfg.Logger}
		backend, err := factory.NewBackend(backendType, config)
		if err != nil {
			return err
		}
		cfg.Backend = backend
		return nil
	}
}

// WithCustomBackend allows using a pre-configured backend
func WithCustomBackend(backend types.CacheBackend) Option {
	return func(cfg *Config) error {
		if backend == nil {
			return errors.New("backend cannot be nil")
		}
		cfg.Backend = backend
		return nil
	}
}
