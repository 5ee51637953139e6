package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// DefaultRedisPrefix namespaces credential keys in a shared Redis instance.
const DefaultRedisPrefix = "authkeeper:"

// RedisStore keeps credentials in Redis. Useful when several processes of
// the same installation need to share one session (e.g. a headless agent
// next to the CLI).
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get credential[%s]: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set credential[%s]: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to remove credentials %v: %w", keys, err)
	}
	return nil
}

// Clear removes every known credential slot. Slot names are a closed set,
// so this avoids a SCAN over the whole keyspace.
func (s *RedisStore) Clear(ctx context.Context) error {
	slots := append([]string{}, common.AuthSlots...)
	slots = append(slots, common.SlotResetToken)
	return s.Remove(ctx, slots...)
}
