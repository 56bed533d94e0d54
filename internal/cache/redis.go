package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chunkdb/internal/chunk"
)

// DefaultTTL is how long file info stays cached when no TTL is configured.
const DefaultTTL = 10 * time.Minute

var tracer = otel.Tracer("chunkdb/internal/cache")

// RedisInfoCache caches file metadata as JSON values in Redis.
type RedisInfoCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisInfoCache connects to Redis and verifies the connection.
// A non-positive ttl selects DefaultTTL.
func NewRedisInfoCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisInfoCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisInfoCacheFromClient(client, ttl), nil
}

// NewRedisInfoCacheFromClient wraps an existing client.
func NewRedisInfoCacheFromClient(client *redis.Client, ttl time.Duration) *RedisInfoCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisInfoCache{client: client, prefix: "chunkdb:file:", ttl: ttl}
}

// Close closes the Redis connection.
func (c *RedisInfoCache) Close() error {
	return c.client.Close()
}

func (c *RedisInfoCache) key(fileID string) string {
	return c.prefix + fileID
}

// Get returns the cached info, or nil on a miss.
func (c *RedisInfoCache) Get(ctx context.Context, fileID string) (*chunk.FileInfo, error) {
	ctx, span := tracer.Start(ctx, "redis.get_file_info",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	data, err := c.client.Get(ctx, c.key(fileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil // Cache miss, not an error
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var info chunk.FileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached info: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_hit", true))
	return &info, nil
}

// Set stores info under its file ID.
func (c *RedisInfoCache) Set(ctx context.Context, info *chunk.FileInfo) error {
	ctx, span := tracer.Start(ctx, "redis.set_file_info",
		trace.WithAttributes(
			attribute.String("file_id", info.ID),
			attribute.String("file_name", info.Name),
		),
	)
	defer span.End()

	data, err := json.Marshal(info)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal info: %w", err)
	}

	if err := c.client.Set(ctx, c.key(info.ID), data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(attribute.Int64("ttl_seconds", int64(c.ttl.Seconds())))
	return nil
}

// Invalidate drops the cached info for the file.
func (c *RedisInfoCache) Invalidate(ctx context.Context, fileID string) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_file_info",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	if err := c.client.Del(ctx, c.key(fileID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}

var _ chunk.InfoCache = (*RedisInfoCache)(nil)
