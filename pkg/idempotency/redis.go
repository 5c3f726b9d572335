package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedup is the fast-path duplicate filter in front of the durable
// inbox record. Keys are written only after a message completed, so a hit
// is always safe to skip. It collapses broker redelivery bursts without a
// database round trip; it is an optimization only, never the source of
// truth, so a TTL far longer than any plausible redelivery window is
// enough.
type RedisDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedup(rdb *redis.Client, ttl time.Duration) *RedisDedup {
	return &RedisDedup{rdb: rdb, ttl: ttl}
}

func (s *RedisDedup) Key(group, messageID string) string {
	return fmt.Sprintf("inbox:%s:%s", group, messageID)
}

// Seen reports whether the key was marked completed.
func (s *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records completion. Called after the durable completion mark; losing
// it only costs one database round trip on the next redelivery.
func (s *RedisDedup) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
