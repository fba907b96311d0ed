package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"pechincha/internal/cache"
)

// Revocations records access tokens ended by logout before their expiry.
type Revocations interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryRevocations keeps revoked tokens in process memory.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations builds an empty in-process revocation list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, until := range m.entries {
		if !until.After(now) {
			delete(m.entries, k)
		}
	}
	m.entries[tokenDigest(token)] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.entries[tokenDigest(token)]
	return ok && until.After(m.now()), nil
}

// RedisRevocations shares the revocation list between instances.
type RedisRevocations struct {
	redis *cache.Redis
}

// NewRedisRevocations wraps r.
func NewRedisRevocations(r *cache.Redis) *RedisRevocations {
	return &RedisRevocations{redis: r}
}

func (r *RedisRevocations) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return r.redis.Mark(ctx, r.redis.Key("revoked", tokenDigest(token)), ttl)
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	return r.redis.Exists(ctx, r.redis.Key("revoked", tokenDigest(token)))
}
