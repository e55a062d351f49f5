package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json field names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated user's ID set by middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errors.New("invalid user_id in context")
	}
	return id, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// bind decodes the request body into dst and validates it. It returns the
// message to send back with a 400, or "" when dst is usable.
func bind(c echo.Context, dst any) string {
	if err := c.Bind(dst); err != nil {
		return "invalid body"
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			if fe.Param() != "" {
				return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
			}
			return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
		return "invalid body"
	}
	return ""
}

// statusOf maps a service error kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": message}. Unexpected errors are logged and
// their details withheld from the client.
func fail(c echo.Context, log *slog.Logger, err error) error {
	status := statusOf(err)
	msg, ok := service.Message(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
		if !ok {
			msg = "internal server error"
		}
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func invalidID(c echo.Context, what string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + what + " id"})
}

func loggerOr(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}
