package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mangawatch:ratelimit:"

// checkScript records one attempt and applies the delay schedule atomically.
// KEYS[1] key; ARGV[1] now (ms); ARGV[2] free attempts; ARGV[3] idle expiry (ms); ARGV[4..] delays (ms).
// Returns {allowed, next_allowed_ms}.
var checkScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local free = tonumber(ARGV[2])
local idle = tonumber(ARGV[3])

local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local next_allowed = tonumber(redis.call('HGET', KEYS[1], 'next') or '0')

local allowed = 1
if now < next_allowed then
  allowed = 0
end

count = count + 1
if count >= free then
  local n = #ARGV - 3
  local idx = count - free + 1
  if idx > n then
    idx = n
  end
  next_allowed = now + tonumber(ARGV[3 + idx])
end

redis.call('HSET', KEYS[1], 'count', count, 'next', next_allowed)
redis.call('PEXPIRE', KEYS[1], idle)

if allowed == 1 and next_allowed <= now then
  next_allowed = 0
end
return {allowed, next_allowed}
`)

// RedisLimiter is a Limiter shared by every process talking to the same redis.
// State expires with the key's TTL after the idle expiry.
type RedisLimiter struct {
	client redis.UniversalClient
	policy Policy
	args   []any
	now    func() time.Time
}

// NewRedisLimiter creates a redis backed limiter.
func NewRedisLimiter(client redis.UniversalClient, policy Policy) *RedisLimiter {
	delays := policy.schedule()
	args := make([]any, 0, len(delays))
	for _, d := range delays {
		args = append(args, d.Milliseconds())
	}

	return &RedisLimiter{
		client: client,
		policy: policy,
		args:   args,
		now:    time.Now,
	}
}

// Check records one attempt for key.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	args := append([]any{
		l.now().UnixMilli(),
		l.policy.FreeAttempts,
		l.policy.IdleExpiry.Milliseconds(),
	}, l.args...)

	res, err := checkScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	decision := Decision{Allowed: res[0] == 1}
	if res[1] > 0 {
		decision.NextAllowedAt = time.UnixMilli(res[1])
	}
	return decision, nil
}

// Reset forgets key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
