package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	redisclient "github.com/rcms-care/portal-backend/shared/redis"
)

// ErrNoFlash indicates no pending value for the key.
var ErrNoFlash = errors.New("no flash for key")

// FlashStore keeps per-subject one-shot denial reasons across
// navigations: the guard writes a reason, the login surface reads it
// exactly once. Values expire so an abandoned navigation cannot leave a
// stale reason behind.
type FlashStore interface {
	Put(ctx context.Context, key, value string) error
	Take(ctx context.Context, key string) (string, error)
}

// RedisFlashStore keeps flashes in Redis for multi-instance deployments.
type RedisFlashStore struct {
	client *redisclient.RedisClient
	ttl    time.Duration
}

// NewRedisFlashStore creates a flash store over an existing connection.
func NewRedisFlashStore(client *redisclient.RedisClient, ttl time.Duration) *RedisFlashStore {
	return &RedisFlashStore{client: client, ttl: ttl}
}

// Put stores the value under key with the configured TTL.
func (s *RedisFlashStore) Put(ctx context.Context, key, value string) error {
	return s.client.SetFlash(ctx, key, value, s.ttl)
}

// Take reads and deletes the value.
func (s *RedisFlashStore) Take(ctx context.Context, key string) (string, error) {
	val, err := s.client.TakeFlash(ctx, key)
	if errors.Is(err, redisclient.ErrNoValue) {
		return "", ErrNoFlash
	}
	return val, err
}

type memoryFlash struct {
	value   string
	expires time.Time
}

// MemoryFlashStore is the single-instance fallback used when no Redis
// address is configured, and in tests.
type MemoryFlashStore struct {
	mu      sync.Mutex
	flashes map[string]memoryFlash
	ttl     time.Duration
}

// NewMemoryFlashStore creates an in-memory flash store.
func NewMemoryFlashStore(ttl time.Duration) *MemoryFlashStore {
	return &MemoryFlashStore{
		flashes: make(map[string]memoryFlash),
		ttl:     ttl,
	}
}

// Put stores the value under key.
func (s *MemoryFlashStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes[key] = memoryFlash{value: value, expires: time.Now().Add(s.ttl)}
	return nil
}

// Take reads and deletes the value.
func (s *MemoryFlashStore) Take(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flash, ok := s.flashes[key]
	if !ok {
		return "", ErrNoFlash
	}
	delete(s.flashes, key)
	if time.Now().After(flash.expires) {
		return "", ErrNoFlash
	}
	return flash.value, nil
}
