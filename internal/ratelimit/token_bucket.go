package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tileflow:ratelimit"

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// takeScript refills the bucket from the Redis server clock, so workers on
// hosts with skewed clocks share one timeline.
//
// KEYS[1] bucket, ARGV capacity, refill per ms, cost, ttl ms.
// Returns {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - at) * rate)

local ok = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  ok = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {ok, math.floor(tokens), wait}
`)

// RedisTokenBucket throttles renders per source identifier so one hot
// image cannot monopolise the workers. Buckets live in Redis and are shared
// by every worker process.
type RedisTokenBucket struct {
	client    redis.UniversalClient
	capacity  int64
	rate      float64
	ttl       time.Duration
	keyPrefix string
}

// NewRedisTokenBucket allows capacity renders per identifier per window,
// refilling continuously. An empty keyPrefix uses "tileflow:ratelimit".
func NewRedisTokenBucket(client redis.UniversalClient, capacity int, window time.Duration, keyPrefix string) (*RedisTokenBucket, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case capacity <= 0:
		return nil, fmt.Errorf("capacity must be positive")
	case window <= 0:
		return nil, fmt.Errorf("window must be positive")
	}

	keyPrefix = strings.TrimSpace(keyPrefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &RedisTokenBucket{
		client:    client,
		capacity:  int64(capacity),
		rate:      float64(capacity) / float64(max(1, window.Milliseconds())),
		ttl:       2 * window,
		keyPrefix: keyPrefix,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, identifier string) (Decision, error) {
	return l.AllowN(ctx, identifier, 1)
}

// AllowN takes cost tokens from the identifier's bucket. A cost above the
// bucket capacity can never succeed and is rejected without a round trip.
func (l *RedisTokenBucket) AllowN(ctx context.Context, identifier string, cost int64) (Decision, error) {
	if cost <= 0 {
		return Decision{}, fmt.Errorf("cost must be positive")
	}
	if cost > l.capacity {
		return Decision{}, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, l.capacity)
	}

	values, err := takeScript.Run(ctx, l.client,
		[]string{l.key(identifier)},
		l.capacity, l.rate, cost, max(1, l.ttl.Milliseconds()),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take from bucket %s: %w", identifier, err)
	}
	return decode(values)
}

func decode(values []int64) (Decision, error) {
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("token bucket returned %d values, want 3", len(values))
	}
	return Decision{
		Allowed:    values[0] == 1,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

func (l *RedisTokenBucket) key(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = "unknown"
	}
	return l.keyPrefix + ":" + identifier
}
