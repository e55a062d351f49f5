package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores its subject and role in the request context under
// "user_id" (uint64) and "role" (string). The secret must match the one
// used by utils.NewAccessToken.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			if msg := authenticate(c, secret, strings.TrimPrefix(auth, "Bearer ")); msg != "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}
			return next(c)
		}
	}
}

// OptionalJWT identifies the caller when a valid bearer token is present
// and lets anonymous requests through. An invalid token is still rejected
// so clients notice expired sessions.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return next(c)
			}
			if msg := authenticate(c, secret, strings.TrimPrefix(auth, "Bearer ")); msg != "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
			}
			return next(c)
		}
	}
}

// authenticate verifies raw and stores its claims in c. It returns the
// reason for rejecting the token, or "".
func authenticate(c echo.Context, secret, raw string) string {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "invalid token"
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "invalid claims"
	}
	uid, ok := toUint64(claims["sub"])
	role, _ := claims["role"].(string)
	if !ok || role == "" {
		return "invalid claims"
	}
	c.Set(userIDKey, uid)
	c.Set(roleKey, role)
	return ""
}
