package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-reservation/internal/config"
)

// tokenBucket refills ARGV[3] tokens every ARGV[4] ms up to ARGV[2] and
// takes one. It returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local now, cap, refill, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local st = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(st[1]), tonumber(st[2])
if tokens == nil or ts == nil then
  tokens, ts = cap, now
end
local steps = math.floor(math.max(0, now - ts) / every)
if steps > 0 then
  tokens = math.min(cap, tokens + steps * refill)
  ts = ts + steps * every
end
local allowed, wait = 0, 0
if tokens > 0 then
  allowed, tokens = 1, tokens - 1
else
  wait = math.max(0, every - (now - ts))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tokens, wait}
`)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewTokenBucket limits requests per key with a token bucket kept in
// Redis. Without Redis, or when Redis fails, requests pass through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ratelimit")
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			res, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(), int64(cfg.TTL/time.Second)).Int64Slice()
			if err != nil || len(res) != 3 {
				logger.Warn("rate limiter unavailable", "key", key, "err", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if res[0] == 1 {
				return next(c)
			}
			secs := int(math.Ceil(float64(res[2]) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			logger.Debug("request throttled", "key", key, "retry_after_s", secs)
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", subject(c))
	case "ip_user":
		parts = append(parts, "ip", ip, "user", subject(c))
	default:
		parts = append(parts, "ip", ip, "user", subject(c), "route", c.Request().Method+" "+c.Path())
	}
	return strings.Join(parts, ":")
}
