package querycache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"lanecore/internal/config"
)

// DistributedCache layers a Redis-backed tier in front of (or alongside) an
// in-memory Cache, so multiple process instances can share KB query results.
// A nil *DistributedCache behaves as a no-op, matching the teacher's
// nil-receiver-safe cache pattern.
type DistributedCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewDistributed builds a Redis-backed query cache tier when cfg.Enabled.
// Returns nil, nil when disabled so callers can treat it as optional.
func NewDistributed(cfg config.RedisConfig, ttl time.Duration) (*DistributedCache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("querycache: redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DistributedCache{client: client, ttl: ttl, prefix: "kbq:"}, nil
}

func (d *DistributedCache) redisKey(key string) string {
	sum := sha1.Sum([]byte(key))
	return d.prefix + hex.EncodeToString(sum[:])
}

// Get retrieves a JSON-decoded cached value. dest must be a pointer.
func (d *DistributedCache) Get(ctx context.Context, key string, dest any) bool {
	if d == nil || d.client == nil {
		return false
	}
	rk := d.redisKey(key)
	val, err := d.client.Get(ctx, rk).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", rk).Msg("querycache_redis_get_error")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Debug().Err(err).Str("key", rk).Msg("querycache_redis_unmarshal_error")
		return false
	}
	return true
}

// Set stores value under key with the configured TTL.
func (d *DistributedCache) Set(ctx context.Context, key string, value any) {
	if d == nil || d.client == nil {
		return
	}
	rk := d.redisKey(key)
	data, err := json.Marshal(value)
	if err != nil {
		log.Debug().Err(err).Str("key", rk).Msg("querycache_redis_marshal_error")
		return
	}
	if err := d.client.Set(ctx, rk, data, d.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", rk).Msg("querycache_redis_set_error")
	}
}

// Invalidate drops every cached entry (used when the KB index signature
// changes, since a stale entry's key is no longer reachable but cleaning up
// keeps memory bounded on the Redis side too).
func (d *DistributedCache) Invalidate(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}
	iter := d.client.Scan(ctx, 0, d.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := d.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Debug().Err(err).Str("key", iter.Val()).Msg("querycache_redis_invalidate_error")
		}
	}
	return iter.Err()
}

// Close closes the underlying Redis client.
func (d *DistributedCache) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}
