package backends

import (
	"errors"

	"github.com/botirk38/chunkcache/backends/file"
	"github.com/botirk38/chunkcache/backends/inmemory"
	"github.com/botirk38/chunkcache/backends/remote"
	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/types"
)

var ErrUnsupportedBackend = errors.New("unsupported backend type")

// BackendFactory creates cache backends based on type and configuration
type BackendFactory struct {
	// Logger is handed to backends that report degraded reads.
	Logger logger.Logger
}

// NewBackend creates a new cache backend of the specified type
func (f *BackendFactory) NewBackend(backendType types.BackendType, config types.BackendConfig) (types.CacheBackend, error) {
	switch backendType {
	case types.BackendMemory:
		return NewMemoryBackend(config)
	case types.BackendLRU:
		return NewLRUBackend(config)
	case types.BackendFile:
		return NewFileBackend(config, f.Logger)
	case types.BackendRedis:
		return NewRedisBackend(config)
	default:
		return nil, ErrUnsupportedBackend
	}
}

// NewMemoryBackend creates the bounded creation-order backend
func NewMemoryBackend(config types.BackendConfig) (types.CacheBackend, error) {
	return inmemory.NewFIFOBackend(config)
}

// NewLRUBackend creates a new LRU backend
func NewLRUBackend(config types.BackendConfig) (types.CacheBackend, error) {
	return inmemory.NewLRUBackend(config)
}

// NewFileBackend creates a one-record-per-key backend under config.Directory
func NewFileBackend(config types.BackendConfig, log logger.Logger) (types.CacheBackend, error) {
	return file.NewFileBackend(config, file.WithLogger(log))
}

// NewRedisBackend creates a new Redis backend
func NewRedisBackend(config types.BackendConfig) (types.CacheBackend, error) {
	return remote.NewRedisBackend(config)
}
