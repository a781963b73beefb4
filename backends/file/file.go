// Package file provides a persistent cache backend storing one record per key.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/botirk38/chunkcache/logger"
	"github.com/botirk38/chunkcache/types"
	"github.com/spf13/afero"
)

// DefaultExtension is the record file extension used when none is configured.
const DefaultExtension = "json"

var (
	// ErrMissingDirectory is returned when no cache directory is configured.
	ErrMissingDirectory = errors.New("cache directory is required")

	// ErrInvalidKey is returned for keys that would escape the cache directory.
	ErrInvalidKey = errors.New("cache key must be a plain file name")
)

// FileBackend stores each entry as a JSON record at {dir}/{key}.{ext}.
//
// Writes go to a temporary file in the same directory and are renamed into
// place, so readers never observe a half-written record. There is no
// cross-process locking: the last rename wins.
type FileBackend struct {
	fs  afero.Fs
	dir string
	ext string
	now types.Clock
	log logger.Logger
}

// Option configures a FileBackend.
type Option func(*FileBackend)

// WithFs replaces the OS filesystem, mainly for tests.
func WithFs(fs afero.Fs) Option {
	return func(b *FileBackend) { b.fs = fs }
}

// WithLogger sets the logger used to report unreadable records.
func WithLogger(l logger.Logger) Option {
	return func(b *FileBackend) { b.log = l }
}

// NewFileBackend creates the cache directory if needed and returns the backend.
func NewFileBackend(config types.BackendConfig, opts ...Option) (*FileBackend, error) {
	if config.Directory == "" {
		return nil, ErrMissingDirectory
	}
	ext := strings.TrimPrefix(config.Extension, ".")
	if ext == "" {
		ext = DefaultExtension
	}

	b := &FileBackend{
		fs:  afero.NewOsFs(),
		dir: config.Directory,
		ext: ext,
		now: config.Clock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = logger.OrDiscard(b.log)

	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return b, nil
}

func (b *FileBackend) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", ErrInvalidKey
	}
	return filepath.Join(b.dir, key+"."+b.ext), nil
}

// load reads the record for key. Missing, corrupt and expired records all
// come back as (zero, false); the latter two are removed from disk.
func (b *FileBackend) load(key string) (types.Entry, bool, error) {
	p, err := b.path(key)
	if err != nil {
		return types.Entry{}, false, err
	}

	data, err := afero.ReadFile(b.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return types.Entry{}, false, nil
	}
	if err != nil {
		b.log.Warn("Failed to read cache record", "key", key, "error", err)
		return types.Entry{}, false, nil
	}

	var entry types.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		b.log.Warn("Evicting corrupt cache record", "key", key, "error", err)
		b.remove(p)
		return types.Entry{}, false, nil
	}

	if entry.IsExpired(b.now()) {
		b.remove(p)
		return types.Entry{}, false, nil
	}
	return entry, true, nil
}

func (b *FileBackend) remove(p string) {
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log.Warn("Failed to remove cache record", "path", p, "error", err)
	}
}

// Get retrieves a live entry
func (b *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, found, err := b.load(key)
	if err != nil || !found {
		return nil, false, err
	}
	return entry.Value, true, nil
}

// Set writes the record atomically via temp file and rename
func (b *FileBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(types.NewEntry(value, b.now(), ttl))
	if err != nil {
		return fmt.Errorf("failed to encode cache record: %w", err)
	}

	tmp, err := afero.TempFile(b.fs, b.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}
	if err := b.fs.Rename(tmpName, p); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("failed to move record into place: %w", err)
	}
	return nil
}

// Delete removes the record for key
func (b *FileBackend) Delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}
	return nil
}

// Exists checks if a live record is stored under key
func (b *FileBackend) Exists(_ context.Context, key string) (bool, error) {
	_, found, err := b.load(key)
	return found, err
}

func (b *FileBackend) records() ([]string, error) {
	infos, err := afero.ReadDir(b.fs, b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	suffix := "." + b.ext
	var keys []string
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, suffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, suffix))
	}
	return keys, nil
}

// Flush removes every record in the cache directory
func (b *FileBackend) Flush(_ context.Context) error {
	keys, err := b.records()
	if err != nil {
		return err
	}
	for _, key := range keys {
		p, _ := b.path(key)
		if err := b.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to flush cache record: %w", err)
		}
	}
	return nil
}

// Len returns the number of live records, evicting expired and corrupt ones
func (b *FileBackend) Len(_ context.Context) (int, error) {
	keys, err := b.records()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, key := range keys {
		if _, found, _ := b.load(key); found {
			count++
		}
	}
	return count, nil
}

// Close is a no-op; records stay on disk.
func (b *FileBackend) Close() error {
	return nil
}
