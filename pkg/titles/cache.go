// Package titles resolves video identifiers to display titles through a
// persistent cache and an optional external lookup.
package titles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/config"
)

// ErrCacheClosed is returned by operations on a closed cache.
var ErrCacheClosed = errors.New("title cache is closed")

// Cache maps video identifiers to titles.
type Cache interface {
	// Get returns the cached title for id.
	Get(ctx context.Context, id string) (title string, ok bool, err error)

	// Put stores a title. Implementations persist it before returning.
	Put(ctx context.Context, id, title string) error

	// Len returns the number of cached titles.
	Len() int

	// Close releases resources.
	Close() error
}

// OpenCache opens the cache backend selected by cfg.
func OpenCache(cfg config.TitleCacheConfig) (Cache, error) {
	switch cfg.Backend {
	case config.CacheBackendJSON, "":
		return OpenFileCache(cfg.Path), nil
	case config.CacheBackendBadger:
		return OpenBadgerCache(cfg.Path)
	case config.CacheBackendMemory:
		return NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown title cache backend %q", cfg.Backend)
	}
}

// MemoryCache keeps titles for the life of the process.
type MemoryCache struct {
	mu     sync.RWMutex
	titles map[string]string
	closed bool
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{titles: make(map[string]string)}
}

// Get returns the cached title for id.
func (c *MemoryCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return "", false, ErrCacheClosed
	}
	title, ok := c.titles[id]
	return title, ok, nil
}

// Put stores a title.
func (c *MemoryCache) Put(_ context.Context, id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	c.titles[id] = title
	return nil
}

// Len returns the number of cached titles.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.titles)
}

// Close marks the cache closed.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

const fileLockRetry = 50 * time.Millisecond

// FileCache is a cache backed by a JSON object file of id -> title.
//
// The whole file is loaded on open. Every Put takes an exclusive lock on
// path+".lock", re-reads the file, merges the new entry and renames the
// result into place, so processes sharing the file never drop each other's
// titles. Load and write failures are logged; the in-memory map keeps
// working either way.
type FileCache struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	titles map[string]string
	closed bool
}

// OpenFileCache loads path if it exists.
// A missing or unreadable file yields an empty cache.
func OpenFileCache(path string) *FileCache {
	c := &FileCache{
		path:   path,
		lock:   flock.New(path + ".lock"),
		titles: make(map[string]string),
	}

	if err := c.load(); err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("Title cache not loaded, starting empty")
	}

	return c
}

func (c *FileCache) load() error {
	data, err := os.ReadFile(c.path) // #nosec G304 -- configured cache path
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading title cache: %w", err)
	}

	// Decode loosely so entries this version does not understand are
	// skipped rather than failing the whole file.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing title cache: %w", err)
	}
	for id, v := range raw {
		if title, ok := v.(string); ok {
			c.titles[id] = title
		}
	}
	return nil
}

// Get returns the cached title for id.
func (c *FileCache) Get(_ context.Context, id string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", false, ErrCacheClosed
	}
	title, ok := c.titles[id]
	return title, ok, nil
}

// Put stores a title and rewrites the file under the file lock.
// The title stays cached in memory even when the write fails.
func (c *FileCache) Put(ctx context.Context, id, title string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCacheClosed
	}
	c.titles[id] = title

	locked, err := c.lock.TryLockContext(ctx, fileLockRetry)
	if err != nil {
		return fmt.Errorf("locking title cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("locking title cache: %s is held by another process", c.lock.Path())
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			logging.Warn().Err(err).Str("path", c.lock.Path()).Msg("Failed to release title cache lock")
		}
	}()

	// Pick up titles other processes wrote since we loaded.
	if err := c.load(); err != nil {
		logging.Warn().Err(err).Str("path", c.path).Msg("Title cache not re-read before write")
	}
	c.titles[id] = title

	return c.flush()
}

// flush writes the map to a temp file and renames it over the cache file
// (must be called with mu and the file lock held).
func (c *FileCache) flush() error {
	data, err := json.MarshalIndent(c.titles, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding title cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing title cache: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing title cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing title cache: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing title cache: %w", err)
	}
	return nil
}

// Len returns the number of cached titles.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

// Close marks the cache closed. Every Put has already been written.
func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.lock.Close()
}
