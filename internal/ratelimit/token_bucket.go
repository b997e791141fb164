// Package ratelimit implements a per-subject token bucket shared through Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "pixelfn:ratelimit"
	anonymousSubject = "anonymous"
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills the bucket from elapsed time, then tries to
// take ARGV[4] tokens. Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now_ms

tokens = math.min(capacity, tokens + math.max(0, now_ms - ts) * refill_per_ms)

local allowed = 0
local retry_ms = 0
if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  retry_ms = math.ceil((requested - tokens) / refill_per_ms)
end

redis.call("HSET", key, "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, math.floor(tokens), retry_ms}
`)

// TokenBucket allows Capacity requests per window for each subject.
type TokenBucket struct {
	client      redis.Scripter
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

func NewTokenBucket(client redis.Scripter, capacity int, window time.Duration, keyPrefix string) (*TokenBucket, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = DefaultKeyPrefix
	}

	windowMS := max(window.Milliseconds(), 1)
	return &TokenBucket{
		client:      client,
		capacity:    int64(capacity),
		refillPerMS: float64(capacity) / float64(windowMS),
		ttl:         2 * window,
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

func (b *TokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = anonymousSubject
	}
	return b.keyPrefix + ":" + subject
}

func (b *TokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	raw, err := tokenBucketScript.Run(
		ctx,
		b.client,
		[]string{b.key(subject)},
		b.capacity,
		b.refillPerMS,
		b.now().UTC().UnixMilli(),
		1,
		b.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	return parseDecision(raw)
}

func parseDecision(raw any) (Decision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket reply: %v", raw)
	}

	var parsed [3]int64
	for i, name := range []string{"allowed", "remaining", "retry-after"} {
		n, err := toInt64(values[i])
		if err != nil {
			return Decision{}, fmt.Errorf("parse %s value: %w", name, err)
		}
		parsed[i] = n
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Remaining:  parsed[1],
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
	}, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
