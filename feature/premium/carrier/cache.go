package carrier

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cacheEntry holds parsed carrier files for one billing period.
type cacheEntry struct {
	files []File
	built time.Time
}

// fileCache is a TTL cache keyed by billing period with singleflight
// stampede protection, so concurrent premium runs for the same period
// parse the remittance files once.
type fileCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	sf      singleflight.Group
}

func newFileCache(ttlSeconds int) *fileCache {
	return &fileCache{
		entries: make(map[string]*cacheEntry),
		ttl:     time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *fileCache) expired(e *cacheEntry) bool {
	if c.ttl == 0 {
		return true // caching disabled
	}
	return time.Since(e.built) > c.ttl
}

// getOrLoad returns the cached files for a period or builds them via
// load, ensuring only one load runs per period at a time.
func (c *fileCache) getOrLoad(period string, load func() ([]File, error)) ([]File, error) {
	// Fast path: fresh cache hit.
	c.mu.RLock()
	entry, exists := c.entries[period]
	c.mu.RUnlock()

	if exists && !c.expired(entry) {
		return entry.files, nil
	}

	result, err, _ := c.sf.Do(period, func() (interface{}, error) {
		// Double-check after acquiring the singleflight slot.
		c.mu.RLock()
		entry, exists := c.entries[period]
		c.mu.RUnlock()

		if exists && !c.expired(entry) {
			return entry.files, nil
		}

		files, err := load()
		if err != nil {
			return nil, err
		}

		if c.ttl > 0 {
			c.mu.Lock()
			c.entries[period] = &cacheEntry{files: files, built: time.Now()}
			c.mu.Unlock()
		}
		return files, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]File), nil
}

// invalidate drops the cached files for a period, forcing a reload on
// the next run (used by forced reruns).
func (c *fileCache) invalidate(period string) {
	c.mu.Lock()
	delete(c.entries, period)
	c.mu.Unlock()
}

// Invalidate drops the cached remittance files for a billing period.
func (s *StorageSource) Invalidate(billingPeriod string) {
	s.cache.invalidate(billingPeriod)
}
