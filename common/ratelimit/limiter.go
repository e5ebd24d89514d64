// Package ratelimit counts requests per key in fixed windows, in Redis when
// one is configured and in process memory otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xka/flowmon/common/redis"
)

// fixedWindowScript increments the counter for KEYS[1] and starts its window
// on first use. Returns {allowed, current_count, limit, retry_after_ms}.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local limit = tonumber(ARGV[1])
if current > limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then ttl = 0 end
  return {0, current, limit, ttl}
end
return {1, current, limit, 0}
`

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed      bool          // Whether the request is allowed
	CurrentCount int64         // Current count in the window
	Limit        int64         // The limit that was checked
	RetryAfter   time.Duration // Time until the window resets (0 if allowed)
}

// Limiter checks and counts one request against key
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*Result, error)
}

// New returns a Redis-backed limiter when client is set, an in-memory one
// otherwise
func New(client *redis.Client, logger Logger) Limiter {
	if client != nil {
		return NewRedisLimiter(client, logger)
	}
	return NewMemoryLimiter(logger)
}

// RedisLimiter shares counters between monitor instances
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewRedisLimiter creates a limiter backed by a Lua script
func NewRedisLimiter(client *redis.Client, logger Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		script: redis.NewScript(fixedWindowScript),
		logger: logger,
	}
}

// Allow runs the script atomically for key
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*Result, error) {
	redisKey := "flowmon:rate_limit:" + key
	raw, err := r.redis.RunScript(ctx, r.script, []string{redisKey}, limit, window.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(raw) != 4 {
		return nil, fmt.Errorf("unexpected script result format")
	}

	res := &Result{
		Allowed:      raw[0] == 1,
		CurrentCount: raw[1],
		Limit:        raw[2],
		RetryAfter:   time.Duration(raw[3]) * time.Millisecond,
	}
	r.log(key, res)
	return res, nil
}

func (r *RedisLimiter) log(key string, res *Result) {
	if !res.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", res.CurrentCount,
			"limit", res.Limit,
			"retry_after", res.RetryAfter)
		return
	}
	r.logger.Debug("rate limit check passed", "key", key, "current", res.CurrentCount, "limit", res.Limit)
}

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter keeps counters for a single process
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	logger  Logger
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(logger Logger) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
		logger:  logger,
	}
}

// Allow counts the request in key's current window
func (m *MemoryLimiter) Allow(ctx context.Context, key string, limit int64, span time.Duration) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		m.sweep(now)
		w = &window{resetAt: now.Add(span)}
		m.windows[key] = w
	}
	w.count++

	res := &Result{Allowed: w.count <= limit, CurrentCount: w.count, Limit: limit}
	if !res.Allowed {
		res.RetryAfter = w.resetAt.Sub(now)
		m.logger.Warn("rate limit exceeded", "key", key, "current", w.count, "limit", limit, "retry_after", res.RetryAfter)
	}
	return res, nil
}

// sweep drops expired windows. Caller holds mu.
func (m *MemoryLimiter) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
