package cache

import (
	"context"
	"time"
)

// Cleanup removes entries older than ttl and trims the cache below its
// eviction headroom.
func (dc *DiskCache) Cleanup(ttl time.Duration) (expired, evicted int) {
	if ttl > 0 {
		expired = dc.RemoveOlderThan(dc.now().Add(-ttl))
	}
	evicted = dc.EvictLRU()
	if expired > 0 || evicted > 0 {
		dc.logger.Info("Cache cleanup", "expired", expired, "evicted", evicted)
	}
	return expired, evicted
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (dc *DiskCache) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			dc.Cleanup(ttl)
		case <-ctx.Done():
			return
		}
	}
}

func (dc *DiskCache) now() time.Time {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.clock()
}
