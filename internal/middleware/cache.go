package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/event-reservation/internal/config"
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// bodyRecorder copies what the handler writes, up to limit bytes.
type bodyRecorder struct {
	http.ResponseWriter
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	if !w.overflow {
		if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// NewRedisCache caches successful anonymous GET responses in Redis for
// cfg.TTL. Requests carrying credentials are never cached or served from
// the cache. Without Redis the middleware passes through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, logger *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || req.Header.Get(echo.HeaderAuthorization) != "" {
				return next(c)
			}
			ctx := req.Context()
			key := cacheKey(cfg.Prefix, req)

			bs, err := rdb.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var cr cachedResponse
				if json.Unmarshal(bs, &cr) == nil {
					c.Response().Header().Set("X-Cache", "HIT")
					return c.Blob(cr.Status, cr.ContentType, cr.Body)
				}
			case !errors.Is(err, redis.Nil):
				logger.Warn("cache read failed", "key", key, "err", err)
			}

			rec := &bodyRecorder{ResponseWriter: c.Response().Writer, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if c.Response().Status != http.StatusOK || rec.overflow {
				return nil
			}
			payload, err := json.Marshal(cachedResponse{
				Status:      http.StatusOK,
				ContentType: c.Response().Header().Get(echo.HeaderContentType),
				Body:        rec.buf.Bytes(),
			})
			if err != nil {
				return nil
			}
			if err := rdb.Set(context.WithoutCancel(ctx), key, payload, cfg.TTL).Err(); err != nil {
				logger.Warn("cache write failed", "key", key, "err", err)
			}
			return nil
		}
	}
}

// cacheKey hashes the concrete request path and query under prefix.
func cacheKey(prefix string, req *http.Request) string {
	sum := sha1.Sum([]byte(req.URL.Path + "?" + req.URL.RawQuery))
	return prefix + ":" + hex.EncodeToString(sum[:])
}
