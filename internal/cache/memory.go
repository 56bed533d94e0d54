package cache

import (
	"context"
	"sync"
	"time"

	"chunkdb/internal/chunk"
)

// MemoryInfoCache is a process-local InfoCache. Entries expire after the TTL.
type MemoryInfoCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	info    chunk.FileInfo
	expires time.Time
}

// NewMemoryInfoCache creates an empty cache. A non-positive ttl selects DefaultTTL.
func NewMemoryInfoCache(ttl time.Duration) *MemoryInfoCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryInfoCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *MemoryInfoCache) Get(_ context.Context, fileID string) (*chunk.FileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fileID]
	if !ok {
		return nil, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, fileID)
		return nil, nil
	}
	info := e.info
	return &info, nil
}

func (c *MemoryInfoCache) Set(_ context.Context, info *chunk.FileInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[info.ID] = memoryEntry{info: *info, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryInfoCache) Invalidate(_ context.Context, fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fileID)
	return nil
}

// Len returns the number of entries, expired or not.
func (c *MemoryInfoCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ chunk.InfoCache = (*MemoryInfoCache)(nil)
