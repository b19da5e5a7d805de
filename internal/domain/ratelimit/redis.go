package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript checks the counter against the limit before incrementing so a
// rejected call never consumes window capacity. Returns -1 on rejection,
// otherwise the post-increment count.
var allowScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
  return -1
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return count
`)

// RedisLimiter is the shared fixed-window limiter for multi-instance
// deployments. Window keys are aligned to the epoch so all instances agree
// on window boundaries.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, tenant, class string) (Decision, error) {
	policy := l.cfg.PolicyFor(tenant, class)
	now := l.now()
	windowStart := now.Truncate(policy.Window)
	key := fmt.Sprintf("trackgate:rl:%s:%s:%d", tenant, class, windowStart.UnixMilli())

	count, err := allowScript.Run(ctx, l.client,
		[]string{key},
		policy.Limit,
		policy.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	if count < 0 {
		return Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(policy.Window).Sub(now),
		}, nil
	}
	return Decision{Allowed: true, Remaining: policy.Limit - int(count)}, nil
}

var _ Limiter = (*RedisLimiter)(nil)
