package session

import (
	"context"
	"log/slog"
	"time"

	"pechincha/internal/cache"
)

// ProfileCache holds recently loaded profiles.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (Profile, bool)
	Set(ctx context.Context, p Profile)
	Invalidate(ctx context.Context, userID string)
}

// RedisProfileCache stores profiles as JSON with a short TTL.
type RedisProfileCache struct {
	redis  *cache.Redis
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisProfileCache caches profiles in r for ttl.
func NewRedisProfileCache(r *cache.Redis, ttl time.Duration, logger *slog.Logger) *RedisProfileCache {
	return &RedisProfileCache{redis: r, ttl: ttl, logger: logger.With("component", "profile_cache")}
}

func (c *RedisProfileCache) key(userID string) string {
	return c.redis.Key("profile", userID)
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (Profile, bool) {
	var p Profile
	ok, err := c.redis.GetJSON(ctx, c.key(userID), &p)
	if err != nil {
		c.logger.Warn("profile cache read failed", "user_id", userID, "error", err)
		return Profile{}, false
	}
	return p, ok
}

func (c *RedisProfileCache) Set(ctx context.Context, p Profile) {
	if err := c.redis.SetJSON(ctx, c.key(p.ID), p, c.ttl); err != nil {
		c.logger.Warn("profile cache write failed", "user_id", p.ID, "error", err)
	}
}

func (c *RedisProfileCache) Invalidate(ctx context.Context, userID string) {
	if err := c.redis.Delete(ctx, c.key(userID)); err != nil {
		c.logger.Warn("profile cache invalidate failed", "user_id", userID, "error", err)
	}
}
