package resultcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
	"github.com/Tributary-ai-services/sitengine/pkg/config"
)

// redisClient is the subset of redis.Cmdable the cache uses
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisCache implements Cache on Redis, sharing results across replicas
type RedisCache struct {
	client redisClient
	closer func() error
	ttl    time.Duration
	prefix string
}

// NewRedisCache opens a Redis client from config
func NewRedisCache(cfg config.RedisCacheConfig, ttl time.Duration, prefix string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	c := NewRedisCacheWithClient(client, ttl, prefix)
	c.closer = client.Close
	return c
}

// NewRedisCacheWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisCacheWithClient(client redisClient, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Ping tests connectivity
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

// Get executes the redis GET command. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (*classify.Result, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached result: %w", err)
	}

	r, err := decodeResult(data)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Set executes the redis SET command with the cache's TTL
func (c *RedisCache) Set(ctx context.Context, key string, result *classify.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("storing cached result: %w", err)
	}
	return nil
}

// Delete executes the redis DEL command
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("deleting cached result: %w", err)
	}
	return nil
}

// Close closes the client when the cache opened it
func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
