package cache

import (
	"errors"
	"time"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheCorrupted is returned when a cached file cannot be decoded.
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64 // bytes on disk
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64

	LastAccess time.Time
	LastEvict  time.Time
}

// HitRate is hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

// Config configures a DiskCache and the caching backend.
type Config struct {
	Dir              string
	Capacity         int64         // bytes on disk
	CompressionLevel int           // zstd level 1-22, 0 disables compression
	TTL              time.Duration // entries older than this are pruned
	CleanupInterval  time.Duration // 0 disables the background janitor
	ReplayChunkSize  int           // chunk size for cache hits
}

// DefaultConfig returns the default cache configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		Capacity:         256 * 1024 * 1024,
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		ReplayChunkSize:  4096,
	}
}
