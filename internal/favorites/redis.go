package favorites

import (
	"context"
	"encoding/json"
	"strings"

	"pechincha/internal/cache"
)

// RedisKV keeps favorites in Redis under the cache namespace.
type RedisKV struct {
	redis *cache.Redis
}

// NewRedisKV wraps an existing Redis client.
func NewRedisKV(r *cache.Redis) *RedisKV {
	return &RedisKV{redis: r}
}

func (k *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	var raw json.RawMessage
	ok, err := k.redis.GetJSON(ctx, k.redis.Key(key), &raw)
	if err != nil || !ok {
		return "", false, err
	}
	return string(raw), true, nil
}

func (k *RedisKV) Put(ctx context.Context, key, value string) error {
	return k.redis.SetJSON(ctx, k.redis.Key(key), json.RawMessage(value), 0)
}

func (k *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	namespaced := k.redis.Key(prefix)
	if strings.HasSuffix(prefix, ":") {
		namespaced += ":"
	}
	full, err := k.redis.Scan(ctx, namespaced+"*")
	if err != nil {
		return nil, err
	}
	strip := strings.TrimSuffix(namespaced, prefix)
	keys := make([]string, 0, len(full))
	for _, key := range full {
		keys = append(keys, strings.TrimPrefix(key, strip))
	}
	return keys, nil
}
