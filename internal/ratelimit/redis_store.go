package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// reserveScript trims the window, then admits the request or reports when the
// oldest entry expires. Scores are unix milliseconds.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) + window}
`)

// RedisStore shares request windows between replicas through sorted sets.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ WindowStore = (*RedisStore)(nil)

// NewRedisStore keeps windows under keys prefixed with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "marketscanner:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, time.Time, error) {
	res, err := reserveScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Slice()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("reserve window slot: %w", err)
	}
	if len(res) != 2 {
		return false, time.Time{}, fmt.Errorf("reserve window slot: unexpected reply %v", res)
	}
	admitted, _ := res[0].(int64)
	if admitted == 1 {
		return true, time.Time{}, nil
	}
	retryAt, _ := res[1].(int64)
	return false, time.UnixMilli(retryAt), nil
}

func (s *RedisStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	min := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, s.prefix+key, min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count window: %w", err)
	}
	return int(n), nil
}
