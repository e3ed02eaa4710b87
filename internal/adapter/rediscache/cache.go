// Package rediscache stores suggestion results in Redis so that several web
// instances share one cache.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/city-search/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Cache is a Redis-backed suggestion cache. Entries expire after ttl.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewClient opens a client for addr. It does not dial until first use.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, key string) ([]domain.City, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var cities []domain.City
	if err := json.Unmarshal(data, &cities); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached %s: %w", key, err)
	}
	return cities, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, cities []domain.City) error {
	data, err := json.Marshal(cities)
	if err != nil {
		return fmt.Errorf("marshal cities: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// CheckReadiness pings Redis.
func (c *Cache) CheckReadiness(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
