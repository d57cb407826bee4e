package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"gudangraja/backend/internal/domain"
)

// RedisCache wraps one redis client and hands out the typed cache views that
// share it.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Stock() *RedisStockCache {
	return &RedisStockCache{client: c.client}
}

func (c *RedisCache) Suggestions() *RedisSuggestionCache {
	return &RedisSuggestionCache{client: c.client}
}

type RedisStockCache struct {
	client *redis.Client
}

func (c *RedisStockCache) Get(ctx context.Context, key string) (*domain.BucketBreakdown, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var breakdown domain.BucketBreakdown
	if err := json.Unmarshal([]byte(val), &breakdown); err != nil {
		return nil, false, err
	}
	return &breakdown, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, key string, value *domain.BucketBreakdown, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisStockCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

type RedisSuggestionCache struct {
	client *redis.Client
}

func (c *RedisSuggestionCache) Get(ctx context.Context, key string) (*domain.ReorderSuggestionResponse, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp domain.ReorderSuggestionResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisSuggestionCache) Set(ctx context.Context, key string, value *domain.ReorderSuggestionResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
