// Package ratelimit provides a Redis-backed request rate limiter for the
// open subscribe endpoint. Every subscribe rotates a confirmation token and
// sends an email, so an unthrottled caller can churn tokens and spam a
// victim's inbox.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailmule/internal/pkg/logger"
)

// Lua script for an atomic fixed-window check-and-increment. A plain
// GET → check → INCR sequence would race under concurrent requests.
const limitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return 0
end

local new = redis.call("INCR", key)
if new == 1 then
    redis.call("EXPIRE", key, ttl)
end
return 1
`

// Limiter is a per-key fixed-window rate limiter (one window = one minute).
type Limiter struct {
	redis       *redis.Client
	perMinute   int
	limitScript *redis.Script
}

// NewLimiter creates a limiter allowing perMinute requests per key per minute.
func NewLimiter(client *redis.Client, perMinute int) *Limiter {
	return &Limiter{
		redis:       client,
		perMinute:   perMinute,
		limitScript: redis.NewScript(limitLuaScript),
	}
}

// Allow reports whether the request identified by key (typically a client
// IP) may proceed. Redis outages fail open: rate limiting is protection,
// not a correctness requirement, and a down Redis must not take the
// subscribe endpoint with it.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	res, err := l.limitScript.Run(ctx, l.redis,
		[]string{fmt.Sprintf("ratelimit:subscribe:%s", key)},
		l.perMinute, 60).Int()
	if err != nil {
		logger.Warn("rate limiter unavailable, failing open", "error", err)
		return true
	}
	return res == 1
}
