package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/aussiebroadwan/careportal/pkg/clock"
	"github.com/aussiebroadwan/careportal/pkg/idx"
	"github.com/redis/go-redis/v9"
)

// slidingRecord prunes, counts and conditionally adds n members atomically.
// KEYS[1]=zset ARGV: now_ms, window_ms, max, member, n
var slidingRecord = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local n = tonumber(ARGV[5])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
if redis.call('ZCARD', KEYS[1]) + n > tonumber(ARGV[3]) then
  return 0
end
for i = 1, n do
  redis.call('ZADD', KEYS[1], now, ARGV[4] .. ':' .. i)
end
redis.call('PEXPIRE', KEYS[1], window)
return 1
`)

// fixedRecord adds n to the bucket counter unless that would overflow it.
// KEYS[1]=counter ARGV: max, bucket_end_ms, n
var fixedRecord = redis.NewScript(`
local n = tonumber(ARGV[3])
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
if c + n > tonumber(ARGV[1]) then
  return 0
end
if redis.call('INCRBY', KEYS[1], n) == n then
  redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
return 1
`)

// Redis is a Limiter shared by every portal instance. Sliding windows live in
// sorted sets scored by attempt time; fixed windows are INCR counters that
// expire at the bucket boundary. TokenBucket limits are accounted as fixed
// windows.
//
// Redis failures fail open: Allow and Record return true and the error is
// logged.
type Redis struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock
	log    *slog.Logger
}

var _ Limiter = (*Redis)(nil)

// NewRedis wraps client. Keys are namespaced under prefix (default "rl").
func NewRedis(client redis.UniversalClient, prefix string, c clock.Clock, log *slog.Logger) *Redis {
	if prefix == "" {
		prefix = "rl"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Redis{client: client, prefix: prefix, clock: clock.OrReal(c), log: log}
}

func (r *Redis) slidingKey(key string) string { return r.prefix + ":sw:" + key }
func (r *Redis) fixedKey(key string) string   { return r.prefix + ":fw:" + key }

func (r *Redis) Allow(ctx context.Context, key string, limit Limit) bool {
	if !limit.Valid() {
		return false
	}
	return r.Remaining(ctx, key, limit) > 0
}

func (r *Redis) Record(ctx context.Context, key string, limit Limit) bool {
	return r.RecordN(ctx, key, limit, 1)
}

func (r *Redis) RecordN(ctx context.Context, key string, limit Limit, n int) bool {
	if !limit.Valid() || n < 1 || n > limit.Max {
		return false
	}
	now := r.clock.Now()

	var (
		res int64
		err error
	)
	if limit.Strategy == SlidingWindow {
		res, err = slidingRecord.Run(ctx, r.client, []string{r.slidingKey(key)},
			now.UnixMilli(), limit.Window.Milliseconds(), limit.Max, idx.NewAt(now).String(), n).Int64()
	} else {
		end := windowStart(now, limit.Window).Add(limit.Window)
		res, err = fixedRecord.Run(ctx, r.client, []string{r.fixedKey(key)},
			limit.Max, end.UnixMilli(), n).Int64()
	}
	if err != nil {
		r.log.WarnContext(ctx, "rate limit: redis record failed, allowing", "key", key, "error", err)
		return true
	}
	return res == 1
}

func (r *Redis) Remaining(ctx context.Context, key string, limit Limit) int {
	if !limit.Valid() {
		return 0
	}
	used, err := r.used(ctx, key, limit)
	if err != nil {
		r.log.WarnContext(ctx, "rate limit: redis count failed", "key", key, "error", err)
		return limit.Max
	}
	return max(limit.Max-used, 0)
}

func (r *Redis) TimeUntilReset(ctx context.Context, key string, limit Limit) time.Duration {
	if !limit.Valid() {
		return 0
	}
	used, err := r.used(ctx, key, limit)
	if err != nil || used < limit.Max {
		return 0
	}

	now := r.clock.Now()
	if limit.Strategy != SlidingWindow {
		return windowStart(now, limit.Window).Add(limit.Window).Sub(now)
	}

	oldest, err := r.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{
		Key:     r.slidingKey(key),
		Start:   "(" + strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10),
		Stop:    "+inf",
		ByScore: true,
		Count:   1,
	}).Result()
	if err != nil || len(oldest) == 0 {
		return 0
	}
	at := time.UnixMilli(int64(oldest[0].Score))
	return max(at.Add(limit.Window).Sub(now), 0)
}

func (r *Redis) Reset(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.slidingKey(key), r.fixedKey(key)).Err(); err != nil {
		r.log.WarnContext(ctx, "rate limit: redis reset failed", "key", key, "error", err)
	}
}

// Sweep is a no-op; every key carries a TTL.
func (r *Redis) Sweep() int { return 0 }

// Ping checks connectivity for readiness probes.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) used(ctx context.Context, key string, limit Limit) (int, error) {
	if limit.Strategy == SlidingWindow {
		now := r.clock.Now()
		n, err := r.client.ZCount(ctx, r.slidingKey(key),
			"("+strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10), "+inf").Result()
		return int(n), err
	}

	n, err := r.client.Get(ctx, r.fixedKey(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
