package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shelfplan/internal/domain"
)

type RedisProjectionCache struct {
	client *redis.Client
}

func NewRedisProjectionCache(addr string, password string, db int) *RedisProjectionCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisProjectionCache{client: client}
}

func (c *RedisProjectionCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisProjectionCache) Close() error {
	return c.client.Close()
}

func (c *RedisProjectionCache) GetSeries(ctx context.Context, key string) (*domain.StoreSeries, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var series domain.StoreSeries
	if err := json.Unmarshal([]byte(val), &series); err != nil {
		return nil, false, err
	}
	return &series, true, nil
}

func (c *RedisProjectionCache) SetSeries(ctx context.Context, key string, value *domain.StoreSeries, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisProjectionCache) DeleteSeries(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
