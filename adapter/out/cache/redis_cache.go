// Package cache provides Redis-backed caching and locking adapters.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"digest_server/core/domain"
	"digest_server/core/port/out"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCache implements out.DigestCache and out.GenerationLocker on one
// Redis client.
type RedisCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisCache creates the adapter.
func NewRedisCache(client *redis.Client, log zerolog.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		log:    log.With().Str("component", "redis_cache").Logger(),
	}
}

func digestKey(userID uuid.UUID) string {
	return fmt.Sprintf("digest:latest:%s", userID)
}

func lockKey(userID uuid.UUID) string {
	return fmt.Sprintf("digest:lock:%s", userID)
}

// GetLatest returns the cached digest for a user. A miss or a decode
// failure both read as absent.
func (c *RedisCache) GetLatest(ctx context.Context, userID uuid.UUID) (*domain.DigestSummary, bool) {
	data, err := c.client.Get(ctx, digestKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("digest cache read failed")
		}
		return nil, false
	}

	var summary domain.DigestSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		c.log.Warn().Err(err).Msg("digest cache entry corrupt, dropping")
		c.client.Del(ctx, digestKey(userID))
		return nil, false
	}

	return &summary, true
}

// SetLatest stores the digest with a TTL. Failures are logged only; the
// cache is an optimization, not a source of truth.
func (c *RedisCache) SetLatest(ctx context.Context, userID uuid.UUID, digest *domain.DigestSummary, ttl time.Duration) {
	data, err := json.Marshal(digest)
	if err != nil {
		c.log.Warn().Err(err).Msg("digest cache encode failed")
		return
	}
	if err := c.client.Set(ctx, digestKey(userID), data, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("digest cache write failed")
	}
}

// Invalidate drops the cached digest for a user.
func (c *RedisCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	if err := c.client.Del(ctx, digestKey(userID)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("digest cache invalidate failed")
	}
}

// Acquire takes the per-user generation lock with SET NX EX semantics.
func (c *RedisCache) Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, lockKey(userID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire generation lock: %w", err)
	}
	return ok, nil
}

// Release drops the per-user generation lock.
func (c *RedisCache) Release(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to release generation lock: %w", err)
	}
	return nil
}

var _ out.DigestCache = (*RedisCache)(nil)
var _ out.GenerationLocker = (*RedisCache)(nil)

// MemoryLocker is the in-process fallback locker used when Redis is not
// configured. Single-flight holds only within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[uuid.UUID]time.Time
	clock func() time.Time
}

// NewMemoryLocker creates a memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[uuid.UUID]time.Time),
		clock: time.Now,
	}
}

// Acquire takes the lock unless an unexpired hold exists.
func (l *MemoryLocker) Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expiry, ok := l.held[userID]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[userID] = now.Add(ttl)
	return true, nil
}

// Release drops the lock.
func (l *MemoryLocker) Release(ctx context.Context, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, userID)
	return nil
}

var _ out.GenerationLocker = (*MemoryLocker)(nil)
