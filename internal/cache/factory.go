package cache

import (
	"context"
	"fmt"
	"time"

	"chunkdb/internal/chunk"
	"chunkdb/internal/config"
)

// NewInfoCacheFromConfig builds the cache selected by the config type.
// It returns nil, nil when caching is disabled. The returned close function
// is never nil.
func NewInfoCacheFromConfig(ctx context.Context, cfg config.CacheConfig) (chunk.InfoCache, func() error, error) {
	noop := func() error { return nil }

	var ttl time.Duration
	if cfg.TTL != "" {
		d, err := time.ParseDuration(cfg.TTL)
		if err != nil {
			return nil, noop, fmt.Errorf("invalid cache ttl %q: %w", cfg.TTL, err)
		}
		ttl = d
	}

	switch cfg.Type {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return NewMemoryInfoCache(ttl), noop, nil
	case "redis":
		if cfg.Addr == "" {
			return nil, noop, fmt.Errorf("addr required for redis cache")
		}
		c, err := NewRedisInfoCache(ctx, cfg.Addr, cfg.Password, cfg.DB, ttl)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}
