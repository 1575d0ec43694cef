package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"taskhub/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// minRetryInterval 脚本未给出等待时长时的重试间隔。
const minRetryInterval = 20 * time.Millisecond

// tokenBucketLua 在 Redis 中原子地补充并扣减令牌。
// 返回 {allowed, wait_ms, tokens}。
const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
local refill = (delta * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tokens}
`

// Limiter 基于 Redis 的令牌桶限流器，每个 key（如客户端 IP）一个桶。
type Limiter struct {
	rdb    *redis.Client
	prefix string
	rate   float64
	burst  float64
	logger *slog.Logger
	script *redis.Script
}

// NewRedisLimiter 创建限流器。rate 或 burst 不大于 0 时不做限制。
func NewRedisLimiter(rdb *redis.Client, logger *slog.Logger, prefix string, rate float64, burst float64) *Limiter {
	if prefix == "" {
		prefix = "taskhub:ratelimit"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		rdb:    rdb,
		prefix: prefix,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
}

// Enabled 返回限流器是否真正生效。
func (r *Limiter) Enabled() bool {
	return r != nil && r.rdb != nil && r.rate > 0 && r.burst > 0
}

// Allow 尝试为 key 取一个令牌，不阻塞。
// 被拒绝时返回需要等待的时长，供 Retry-After 使用。
func (r *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if !r.Enabled() {
		return true, 0, nil
	}
	allowed, waitMs, err := r.tryAcquire(ctx, key)
	if err != nil {
		return false, 0, err
	}
	return allowed, time.Duration(waitMs) * time.Millisecond, nil
}

// Wait 在 maxWait 内排队等待 key 的令牌。
// 预计的补充时间超出剩余时长或 ctx 结束时返回 ErrRateLimitTimeout，不做无意义的等待。
func (r *Limiter) Wait(ctx context.Context, key string, maxWait time.Duration) error {
	if !r.Enabled() {
		return nil
	}

	start := time.Now()
	deadline := start.Add(maxWait)
	giveUp := func() error {
		metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
		metrics.RateLimitTimeoutTotal.Inc()
		return ErrRateLimitTimeout
	}

	for {
		allowed, waitMs, err := r.tryAcquire(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = minRetryInterval
		}
		if time.Now().Add(wait).After(deadline) {
			return giveUp()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return giveUp()
		case <-timer.C:
		}
	}
}

func (r *Limiter) bucketKey(key string) string {
	return r.prefix + ":" + key
}

func (r *Limiter) tryAcquire(ctx context.Context, key string) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := r.script.Run(ctx, r.rdb, []string{r.bucketKey(key)}, r.rate, r.burst, now, 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}

	allowed := toInt64(values[0]) == 1
	waitMs := toInt64(values[1])
	return allowed, waitMs, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if t == "" {
			return 0
		}
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
