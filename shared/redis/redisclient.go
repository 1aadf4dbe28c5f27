// Package redis wraps the go-redis client for the short-lived
// cross-navigation state this service keeps: denial reasons written by
// the route guard and read exactly once by the login surface.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoValue indicates the key was absent or already consumed.
var ErrNoValue = errors.New("no value for key")

// Config holds all configuration for the Redis client
type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient is a wrapper around the go-redis client.
type RedisClient struct {
	client *redis.Client
	config *Config
}

// NewClient creates and connects a new RedisClient.
func NewClient(cfg *Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{
		client: rdb,
		config: cfg,
	}, nil
}

// Close gracefully closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying go-redis client if needed.
func (c *RedisClient) GetClient() *redis.Client {
	return c.client
}

// SetFlash stores a one-shot value under key with a TTL. The TTL caps
// how long a stale denial reason can survive an abandoned navigation.
func (c *RedisClient) SetFlash(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set flash %s: %w", key, err)
	}
	return nil
}

// TakeFlash reads and deletes the value in one round trip, so a reason
// is shown at most once.
func (c *RedisClient) TakeFlash(ctx context.Context, key string) (string, error) {
	val, err := c.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoValue
	}
	if err != nil {
		return "", fmt.Errorf("failed to take flash %s: %w", key, err)
	}
	return val, nil
}

// HealthCheck verifies Redis connectivity
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
