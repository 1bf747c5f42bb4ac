// Package cache is a content-addressed on-disk store for synthesized
// chunk audio. Entries are zstd-compressed and bounded by total size
// with least-recently-used eviction, so re-running an edited document
// only pays the API for chunks whose text or parameters changed.
package cache

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCapacity bounds the cache when the caller does not.
const DefaultCapacity = 512 << 20 // 512 MiB

// indexFile persists entry metadata between runs.
const indexFile = "chunks.index"

// ErrEntryTooLarge rejects a single entry bigger than the whole cache.
var ErrEntryTooLarge = errors.New("cache entry exceeds capacity")

// entry is the on-disk index record for one cached chunk.
type entry struct {
	Key        string
	Size       int64 // compressed size on disk
	Stored     time.Time
	LastAccess time.Time
}

// Stats summarizes cache effectiveness for the end-of-run log line.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
	Entries   int
}

// Cache implements synth.ChunkCache. Safe for concurrent use.
type Cache struct {
	dir      string
	capacity int64

	mu    sync.Mutex
	size  int64
	index map[string]*entry
	stats Stats
}

// Open loads or creates a cache under dir. A capacity of zero or less
// uses DefaultCapacity. A missing or corrupt index starts empty;
// orphaned data files are rebuilt into it lazily as misses.
func Open(dir string, capacity int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	c := &Cache{dir: dir, capacity: capacity, index: make(map[string]*entry)}
	if err := c.loadIndex(); err != nil {
		c.index = make(map[string]*entry)
	}
	for _, e := range c.index {
		c.size += e.Size
	}
	return c, nil
}

// Get streams the cached audio for key into dst, reporting whether
// the key was present. A corrupt or missing data file counts as a
// miss and is dropped from the index.
func (c *Cache) Get(key string, dst io.Writer) (bool, error) {
	c.mu.Lock()
	e, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		c.mu.Unlock()
		return false, nil
	}
	path := c.entryPath(key)
	c.mu.Unlock()

	err := decompressFile(path, dst)
	if err != nil {
		c.mu.Lock()
		c.dropLocked(key)
		c.stats.Misses++
		c.mu.Unlock()
		_ = os.Remove(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read cache entry: %w", err)
	}

	c.mu.Lock()
	if e, ok = c.index[key]; ok {
		e.LastAccess = time.Now()
	}
	c.stats.Hits++
	c.mu.Unlock()
	return true, nil
}

// Put stores the audio read from src under key, compressing on the
// way down. The write is atomic: a partially written entry is never
// visible under its final name.
func (c *Cache) Put(key string, src io.Reader) error {
	path := c.entryPath(key)
	tmp := path + ".tmp"

	size, err := compressToFile(tmp, src)
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cache entry: %w", err)
	}
	if size > c.capacity {
		_ = os.Remove(tmp)
		return ErrEntryTooLarge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.index[key]; ok {
		c.size -= old.Size
		delete(c.index, key)
	}
	for c.size+size > c.capacity && len(c.index) > 0 {
		c.evictOldestLocked()
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize cache entry: %w", err)
	}

	now := time.Now()
	c.index[key] = &entry{Key: key, Size: size, Stored: now, LastAccess: now}
	c.size += size
	return nil
}

// Clear removes every entry and the persisted index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.index {
		_ = os.Remove(c.entryPath(key))
	}
	c.index = make(map[string]*entry)
	c.size = 0
	return c.saveIndexLocked()
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.size
	s.Entries = len(c.index)
	return s
}

// Close persists the index. The cache must not be used afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveIndexLocked()
}

// entryPath maps a key to its data file. Keys are already hex digests
// so they are filesystem-safe as-is.
func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".zst")
}

// dropLocked removes key from the index without touching disk.
func (c *Cache) dropLocked(key string) {
	if e, ok := c.index[key]; ok {
		c.size -= e.Size
		delete(c.index, key)
	}
}

// evictOldestLocked removes the least recently used entry.
func (c *Cache) evictOldestLocked() {
	var oldest string
	var when time.Time
	for key, e := range c.index {
		if oldest == "" || e.LastAccess.Before(when) {
			oldest, when = key, e.LastAccess
		}
	}
	if oldest == "" {
		return
	}
	_ = os.Remove(c.entryPath(oldest))
	c.dropLocked(oldest)
	c.stats.Evictions++
}

func (c *Cache) loadIndex() error {
	f, err := os.Open(filepath.Join(c.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&c.index)
}

func (c *Cache) saveIndexLocked() error {
	path := filepath.Join(c.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(c.index)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
