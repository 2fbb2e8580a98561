package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The first hit in a window sets the expiry; every hit returns the current
// count and the remaining TTL in milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// Redis is a fixed-window limiter shared across API instances.
type Redis struct {
	client redis.Scripter
	prefix string
	limit  int
	period time.Duration
	now    func() time.Time
}

func NewRedis(client redis.Scripter, prefix string, limit int, period time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, period: period, now: time.Now}
}

var _ Limiter = (*Redis)(nil)
var _ Limiter = (*Memory)(nil)

func (r *Redis) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, r.period.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, vals)
	}
	reset := r.now().Add(time.Duration(vals[1]) * time.Millisecond)
	return build(r.limit, int(vals[0]), reset), nil
}
