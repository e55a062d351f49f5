package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler answers liveness and readiness probes.
type HealthHandler struct {
	DB *sql.DB
}

// Health is a liveness check: it only reports that the process serves HTTP.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports 503 while the database cannot be reached.
func (h *HealthHandler) Ready(c echo.Context) error {
	if h.DB == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "db": "not configured"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "db": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
