// Package cache provides a fast-path seen-URL check in front of the store.
// The database unique constraint stays the source of truth; losing the cache
// only costs an extra lookup.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the seen-URL interface the importer depends on.
type Cache interface {
	IsSeen(ctx context.Context, sourceURL string) (bool, error)
	MarkSeen(ctx context.Context, sourceURL string, ttl time.Duration) error
	Close() error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache parses the URL and verifies connectivity.
func NewRedisCache(redisURL, prefix string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) IsSeen(ctx context.Context, sourceURL string) (bool, error) {
	exists, err := r.client.Exists(ctx, r.prefix+key(sourceURL)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return exists > 0, nil
}

func (r *RedisCache) MarkSeen(ctx context.Context, sourceURL string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key(sourceURL), "1", ttl).Err()
}

// key hashes the URL so arbitrary tweet URLs stay Redis-safe.
func key(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])
}
