package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	TTL_SHORT  = 5 * time.Minute
	TTL_MEDIUM = 30 * time.Minute
	TTL_LONG   = 2 * time.Hour
)

// Key is a structured cache key scoped to (tenant, entity, key parts), so
// invalidation patterns are guaranteed to match what writers produced.
type Key struct {
	Tenant string
	Entity string
	Parts  []string
}

func NewKey(tenant, entity string, parts ...string) Key {
	return Key{Tenant: tenant, Entity: entity, Parts: parts}
}

func (k Key) String() string {
	segments := append([]string{"inventory", k.Tenant, k.Entity}, k.Parts...)
	return strings.Join(segments, ":")
}

// entityPattern is the glob matching every key a writer of this entity has
// produced for the tenant.
func entityPattern(tenant, entity string) string {
	return fmt.Sprintf("inventory:%s:%s:*", tenant, entity)
}

// Cache is a read-through JSON cache. Correctness must hold with the Nop
// implementation; services treat misses and errors identically.
type Cache interface {
	Get(ctx context.Context, key Key, dest interface{}) bool
	Set(ctx context.Context, key Key, value interface{}, ttl time.Duration)
	InvalidateEntity(ctx context.Context, tenant, entity string)
}

// Nop disables caching.
type Nop struct{}

func (Nop) Get(context.Context, Key, interface{}) bool             { return false }
func (Nop) Set(context.Context, Key, interface{}, time.Duration)   {}
func (Nop) InvalidateEntity(context.Context, string, string)       {}

// Redis implements Cache on a redis client. All failures degrade to cache
// misses and are logged at debug level only.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, logger: logger}
}

func (c *Redis) Get(ctx context.Context, key Key, dest interface{}) bool {
	raw, err := c.rdb.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache get failed", zap.String("key", key.String()), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Debug("cache entry not decodable", zap.String("key", key.String()), zap.Error(err))
		return false
	}
	return true
}

func (c *Redis) Set(ctx context.Context, key Key, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache value not encodable", zap.String("key", key.String()), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", zap.String("key", key.String()), zap.Error(err))
	}
}

func (c *Redis) InvalidateEntity(ctx context.Context, tenant, entity string) {
	pattern := entityPattern(tenant, entity)
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.logger.Debug("cache invalidation scan failed", zap.String("pattern", pattern), zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.logger.Debug("cache invalidation del failed", zap.Error(err))
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
