// Package config loads chunking, cache, model and log settings from a YAML
// document with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/botirk38/chunkcache/chunker"
	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/providers/openai"
	"github.com/botirk38/chunkcache/types"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Environment variable prefixes for overrides.
const (
	CacheEnvPrefix = "CHUNKCACHE_CACHE_"
	ModelEnvPrefix = "CHUNKCACHE_MODEL_"
	LogEnvPrefix   = "CHUNKCACHE_LOG_"
)

var (
	ErrMissingChunking = errors.New("config has no chunking section")
	ErrInvalidChunking = errors.New("invalid chunking config")
	ErrInvalidCache    = errors.New("invalid cache config")
	ErrInvalidLog      = errors.New("invalid log config")
)

// Config is the whole settings document.
type Config struct {
	Chunking *chunker.ChunkConfig `yaml:"chunking"`
	Cache    CacheConfig          `yaml:"cache"`
	Model    openai.Config        `yaml:"model"`
	Log      logger.Options       `yaml:"log"`
}

// Logger builds the logger described by the log section, writing to out.
func (c *Config) Logger(out io.Writer) (logger.Logger, error) {
	l, err := logger.New(out, c.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLog, err)
	}
	return l, nil
}

// CacheConfig selects the backend for the token and completion caches.
type CacheConfig struct {
	Backend          types.BackendType `yaml:"backend" env:"BACKEND"`
	Capacity         int               `yaml:"capacity" env:"CAPACITY"`
	Directory        string            `yaml:"directory" env:"DIRECTORY"`
	ConnectionString string            `yaml:"connection_string" env:"CONNECTION_STRING"`
	Prefix           string            `yaml:"prefix" env:"PREFIX"`
	TokenTTL         time.Duration     `yaml:"token_ttl" env:"TOKEN_TTL"`
	CompletionTTL    time.Duration     `yaml:"completion_ttl" env:"COMPLETION_TTL"`
}

// DefaultCacheConfig keeps up to 1000 entries in memory without expiry.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend:  types.BackendMemory,
		Capacity: 1000,
	}
}

// BackendConfig converts c for the backend factory.
func (c CacheConfig) BackendConfig() types.BackendConfig {
	return types.BackendConfig{
		Capacity:         c.Capacity,
		Directory:        c.Directory,
		ConnectionString: c.ConnectionString,
		Prefix:           c.Prefix,
	}
}

// Validate checks the fields the selected backend needs.
func (c CacheConfig) Validate() error {
	switch c.Backend {
	case types.BackendMemory, types.BackendLRU:
		if c.Capacity <= 0 {
			return fmt.Errorf("%w: capacity must be positive for %s backend", ErrInvalidCache, c.Backend)
		}
	case types.BackendFile:
		if c.Directory == "" {
			return fmt.Errorf("%w: directory is required for file backend", ErrInvalidCache)
		}
	case types.BackendRedis:
		if c.ConnectionString == "" {
			return fmt.Errorf("%w: connection string is required for redis backend", ErrInvalidCache)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidCache, c.Backend)
	}
	if c.TokenTTL < 0 || c.CompletionTTL < 0 {
		return fmt.Errorf("%w: ttl cannot be negative", ErrInvalidCache)
	}
	return nil
}

// Load reads the YAML document at path from the OS filesystem.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads the YAML document at path from fs.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, applies environment overrides and
// validates the result. The chunking section is required and never
// defaulted; cache and model sections start from their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Cache: DefaultCacheConfig(),
		Model: openai.DefaultConfig(),
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if err := env.ParseWithOptions(&cfg.Cache, env.Options{Prefix: CacheEnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse cache environment: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Model, env.Options{Prefix: ModelEnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse model environment: %w", err)
	}
	if err := env.ParseWithOptions(&cfg.Log, env.Options{Prefix: LogEnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse log environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Chunking == nil {
		return ErrMissingChunking
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunking, err)
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if _, err := c.Logger(io.Discard); err != nil {
		return err
	}
	return nil
}
