package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const (
	indexFile     = "cache.index"
	compressAbove = 1024
	fileExtension = ".audio"
	evictHeadroom = 90 // percent of capacity kept after EvictLRU
)

// DiskCache stores byte blobs under string keys in a directory, compressing
// them with zstd and evicting the least recently used entries when full.
type DiskCache struct {
	dir      string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index map[string]*diskEntry
	stats Stats
	clock func() time.Time

	logger *log.Logger
	mu     sync.Mutex
}

type diskEntry struct {
	Key          string
	File         string // name relative to dir
	Size         int64  // on disk
	OriginalSize int64
	Stored       time.Time
	LastAccess   time.Time
	Hits         int64
	Compressed   bool
}

// NewDiskCache opens the cache in cfg.Dir, loading its index if present.
func NewDiskCache(cfg Config) (*DiskCache, error) {
	if cfg.Dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", cfg.Capacity)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dc := &DiskCache{
		dir:      cfg.Dir,
		capacity: cfg.Capacity,
		index:    make(map[string]*diskEntry),
		clock:    time.Now,
		logger:   log.Default().WithPrefix("cache"),
	}
	dc.stats.Capacity = cfg.Capacity

	if cfg.CompressionLevel > 0 {
		var err error
		dc.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.CompressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}
	// Entries written with compression stay readable after it is disabled.
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	dc.decoder = dec

	if err := dc.loadIndex(); err != nil {
		dc.logger.Warn("Discarding unreadable cache index", "error", err)
		dc.index = make(map[string]*diskEntry)
	}
	dc.reconcile()
	return dc, nil
}

// Get returns the blob stored under key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := dc.read(entry)
	if err != nil {
		dc.logger.Debug("Dropping unreadable cache entry", "key", short(key), "error", err)
		dc.remove(key, entry)
		dc.stats.Misses++
		return nil, false
	}

	now := dc.clock()
	entry.LastAccess = now
	entry.Hits++
	dc.stats.Hits++
	dc.stats.LastAccess = now
	return data, true
}

func (dc *DiskCache) read(entry *diskEntry) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dc.dir, entry.File))
	if err != nil {
		return nil, err
	}
	if !entry.Compressed {
		return data, nil
	}
	out, err := dc.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheCorrupted, err)
	}
	return out, nil
}

// Put stores value under key, evicting older entries as needed.
func (dc *DiskCache) Put(key string, value []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	data, compressed := value, false
	if dc.encoder != nil && len(value) > compressAbove {
		if enc := dc.encoder.EncodeAll(value, nil); len(enc) < len(value) {
			data, compressed = enc, true
		}
	}
	diskSize := int64(len(data))
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if existing, ok := dc.index[key]; ok {
		dc.remove(key, existing)
	}
	for dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	name := fileName(key)
	if err := writeAtomic(filepath.Join(dc.dir, name), data); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := dc.clock()
	dc.index[key] = &diskEntry{
		Key:          key,
		File:         name,
		Size:         diskSize,
		OriginalSize: int64(len(value)),
		Stored:       now,
		LastAccess:   now,
		Compressed:   compressed,
	}
	dc.size += diskSize

	if err := dc.saveIndex(); err != nil {
		dc.logger.Warn("Failed to save cache index", "error", err)
	}
	return nil
}

// Contains reports whether key is cached without touching its access time.
func (dc *DiskCache) Contains(key string) bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	_, ok := dc.index[key]
	return ok
}

// Delete removes key.
func (dc *DiskCache) Delete(key string) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, ok := dc.index[key]; ok {
		dc.remove(key, entry)
		return dc.saveIndex()
	}
	return nil
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key, entry := range dc.index {
		dc.remove(key, entry)
	}
	return dc.saveIndex()
}

// Stats returns a snapshot of the cache counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	s := dc.stats
	s.Size = dc.size
	s.Items = len(dc.index)
	return s
}

// RemoveOlderThan removes entries stored before cutoff and returns how many
// were removed.
func (dc *DiskCache) RemoveOlderThan(cutoff time.Time) int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	removed := 0
	for key, entry := range dc.index {
		if entry.Stored.Before(cutoff) {
			dc.remove(key, entry)
			removed++
		}
	}
	if removed > 0 {
		dc.stats.Expired += int64(removed)
		if err := dc.saveIndex(); err != nil {
			dc.logger.Warn("Failed to save cache index", "error", err)
		}
	}
	return removed
}

// EvictLRU shrinks the cache to 90% of capacity, oldest access first.
func (dc *DiskCache) EvictLRU() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	target := dc.capacity * evictHeadroom / 100
	evicted := 0
	for dc.size > target && len(dc.index) > 0 {
		dc.evictOldest()
		evicted++
	}
	return evicted
}

// Keys returns cached keys, least recently used first.
func (dc *DiskCache) Keys() []string {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entries := make([]*diskEntry, 0, len(dc.index))
	for _, e := range dc.index {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b *diskEntry) int {
		return a.LastAccess.Compare(b.LastAccess)
	})
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// Close saves the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.encoder != nil {
		dc.encoder.Close()
	}
	dc.decoder.Close()
	return dc.saveIndex()
}

func (dc *DiskCache) remove(key string, entry *diskEntry) {
	os.Remove(filepath.Join(dc.dir, entry.File))
	dc.size -= entry.Size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldest() {
	var oldest *diskEntry
	for _, e := range dc.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	dc.remove(oldest.Key, oldest)
	dc.stats.Evictions++
	dc.stats.LastEvict = dc.clock()
	dc.logger.Debug("Evicted cache entry", "key", short(oldest.Key), "bytes", oldest.Size)
}

// reconcile drops index entries whose files are gone and recomputes size.
func (dc *DiskCache) reconcile() {
	dc.size = 0
	for key, e := range dc.index {
		info, err := os.Stat(filepath.Join(dc.dir, e.File))
		if err != nil || info.Size() != e.Size {
			delete(dc.index, key)
			continue
		}
		dc.size += e.Size
	}
}

func (dc *DiskCache) loadIndex() error {
	f, err := os.Open(filepath.Join(dc.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	path := filepath.Join(dc.dir, indexFile)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(f).Encode(dc.index)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16]) + fileExtension
}

// writeAtomic writes to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
