package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "shelfshare:ratelimit"
	redisTimeout  = 2 * time.Second
)

// The counter and its expiry must be set atomically, otherwise a crash
// between the two calls leaves a key that never expires.
var incrWithExpiry = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// FixedWindowLimiter caps requests per key inside fixed time windows. The
// counters live in Redis so one cap holds across all instances.
type FixedWindowLimiter struct {
	client   *redis.Client
	prefix   string
	limit    int64
	windowMs int64
}

// NewRedisFixedWindowLimiter builds a limiter allowing limit requests per
// window for each key.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	if limit <= 0 {
		return nil, errors.New("rate limiter limit must be positive")
	}
	if window < time.Millisecond {
		return nil, errors.New("rate limiter window must be at least 1ms")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		client:   redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password}),
		prefix:   prefix,
		limit:    int64(limit),
		windowMs: window.Milliseconds(),
	}, nil
}

func (l *FixedWindowLimiter) windowKey(key string, now time.Time) string {
	if strings.TrimSpace(key) == "" {
		key = "unknown"
	}
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, now.UnixMilli()/l.windowMs)
}

// Allow reports whether the key still has quota in the current window. Redis
// failures fail closed: a broken limiter refuses rather than opening the
// floodgates.
func (l *FixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	count, err := incrWithExpiry.Run(ctx, l.client, []string{l.windowKey(key, time.Now().UTC())}, l.windowMs).Int64()
	if err != nil {
		return false
	}
	return count <= l.limit
}
