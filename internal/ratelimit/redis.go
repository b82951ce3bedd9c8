package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares windows between gateway replicas. Windows are aligned to
// multiples of their length so every replica agrees on the current key.
// Keys expire with their window.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, length time.Duration, now time.Time) (int64, time.Time, error) {
	ms := length.Milliseconds()
	if ms <= 0 {
		return 0, time.Time{}, fmt.Errorf("window %s is shorter than a millisecond", length)
	}
	idx := now.UnixMilli() / ms
	resetAt := time.UnixMilli((idx + 1) * ms)
	rkey := fmt.Sprintf("%s:%s:%d", s.prefix, key, idx)

	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, rkey)
		pipe.PExpire(ctx, rkey, length)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return incr.Val(), resetAt, nil
}
