// Package cache provides the two-tier (memory + disk) caches backing
// thumbnails and application icons. Keys are content hashes or bundle
// identifiers; disk files are content-addressed and immutable once
// written — never overwritten, only deleted.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"clipvault/internal/logger"
)

// DefaultMemoryEntries bounds the in-process tier. Disk is unbounded
// until cleaned externally (entry deletion removes its file).
const DefaultMemoryEntries = 256

// Cache is a memory LRU backed by an on-disk directory. Reads populate
// the memory tier on a disk hit; disk I/O failures degrade to misses.
type Cache struct {
	dir string
	mem *lru.Cache[string, []byte]
	log *logger.Logger
}

// New creates a cache rooted at dir, creating the directory if needed.
func New(dir string, memEntries int, log *logger.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if memEntries <= 0 {
		memEntries = DefaultMemoryEntries
	}

	mem, err := lru.New[string, []byte](memEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &Cache{dir: dir, mem: mem, log: log}, nil
}

// Get returns the cached bytes for key. Memory is consulted first; on a
// miss the disk tier is read and, if found, written through to memory.
func (c *Cache) Get(key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	if data, ok := c.mem.Get(key); ok {
		return data, true
	}

	data, err := os.ReadFile(c.filePath(key))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.log.Warn().Err(err).Str("key", key).Msg("cache disk read failed")
		}
		return nil, false
	}

	c.mem.Add(key, data)
	return data, true
}

// Put stores data under key in both tiers and returns the stored size.
// The disk file is only written when absent: keys are content-addressed,
// so an existing file already holds identical bytes.
func (c *Cache) Put(key string, data []byte) (int, error) {
	if key == "" {
		return 0, fmt.Errorf("cache key must not be empty")
	}

	path := c.filePath(key)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return 0, fmt.Errorf("failed to write cache file: %w", err)
		}
	}

	c.mem.Add(key, data)
	return len(data), nil
}

// Remove deletes key from both tiers. Missing keys are tolerated.
func (c *Cache) Remove(key string) {
	if key == "" {
		return
	}

	c.mem.Remove(key)
	if err := os.Remove(c.filePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn().Err(err).Str("key", key).Msg("cache disk remove failed")
	}
}

// Purge drops every cached item from both tiers.
func (c *Cache) Purge() error {
	c.mem.Purge()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove cache file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Contains reports whether key is present without promoting it.
func (c *Cache) Contains(key string) bool {
	if c.mem.Contains(key) {
		return true
	}
	_, err := os.Stat(c.filePath(key))
	return err == nil
}

// EvictMemory drops the memory tier only. The next Get falls through to
// disk. Used by tests and by the low-memory notification path.
func (c *Cache) EvictMemory() {
	c.mem.Purge()
}

func (c *Cache) filePath(key string) string {
	// Keys are hashes or bundle identifiers; strip anything that could
	// escape the cache directory.
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '_'
		}
		return r
	}, key)
	return filepath.Join(c.dir, safe)
}
