package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "user_id"
	roleKey   = "role"
)

// UserID returns the authenticated user's ID stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	return toUint64(c.Get(userIDKey))
}

// Role returns the authenticated user's role, or "" for anonymous requests.
func Role(c echo.Context) string {
	r, _ := c.Get(roleKey).(string)
	return r
}

// toUint64 converts the numeric forms a JWT subject can take after JSON
// decoding.
func toUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, true
	case float64:
		if t < 1 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case int64:
		return uint64(t), t > 0
	case int:
		return uint64(t), t > 0
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// subject keys rate-limit buckets: the user ID when authenticated, "anon"
// otherwise.
func subject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
