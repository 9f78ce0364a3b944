// internal/cache/group_cache.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/javajoker/wildlife-licensing/internal/config"
)

const (
	groupKeyPrefix  = "licensing:groups:"
	groupVersionKey = groupKeyPrefix + "version"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// GroupCache memoises group resolution results. Keys embed a version that is bumped on every
// group write, so stale entries are never read after an invalidation. A nil *GroupCache is a
// cache that always misses.
type GroupCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGroupCache(client *redis.Client, ttl time.Duration) *GroupCache {
	if client == nil {
		return nil
	}
	return &GroupCache{client: client, ttl: ttl}
}

// Get returns the cached group id for the lookup, if any.
func (c *GroupCache) Get(ctx context.Context, kind, activity string, regions []string) (uint, bool, error) {
	if c == nil {
		return 0, false, nil
	}
	key, err := c.key(ctx, kind, activity, regions)
	if err != nil {
		return 0, false, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return uint(id), true, nil
}

func (c *GroupCache) Set(ctx context.Context, kind, activity string, regions []string, groupID uint) error {
	if c == nil {
		return nil
	}
	key, err := c.key(ctx, kind, activity, regions)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, strconv.FormatUint(uint64(groupID), 10), c.ttl).Err()
}

// Invalidate drops every cached resolution by moving to a new key version.
func (c *GroupCache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, groupVersionKey).Err()
}

func (c *GroupCache) key(ctx context.Context, kind, activity string, regions []string) (string, error) {
	version, err := c.client.Get(ctx, groupVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	sorted := append([]string(nil), regions...)
	sort.Strings(sorted)
	return fmt.Sprintf("%sv%d:%s:%s:%s", groupKeyPrefix, version, kind, activity, strings.Join(sorted, "|")), nil
}
