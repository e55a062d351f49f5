package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/service"
)

// StatsHandler serves reporting endpoints.
type StatsHandler struct {
	Stats *service.StatsService
	Log   *slog.Logger
}

func NewStatsHandler(stats *service.StatsService, logger *slog.Logger) *StatsHandler {
	if stats == nil {
		panic("nil service passed to NewStatsHandler")
	}
	return &StatsHandler{Stats: stats, Log: loggerOr(logger, "stats")}
}

// Organizer reports on the caller's events. Admins may pass
// ?organizer_id to look at someone else.
func (h *StatsHandler) Organizer(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	target := uid
	if s := c.QueryParam("organizer_id"); s != "" {
		if middleware.Role(c) != string(model.RoleAdmin) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
		if target, err = strconv.ParseUint(s, 10, 64); err != nil || target == 0 {
			return invalidID(c, "organizer")
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Stats.OrganizerStats(ctx, target)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StatsHandler) Global(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Stats.GlobalStats(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Monthly returns confirmed reservations per month of ?year (default: the
// current one) and the revenue of the current month.
func (h *StatsHandler) Monthly(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	year := h.Stats.Clock.Now().Year()
	if s := c.QueryParam("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid year"})
		}
		year = y
	}
	counts, err := h.Stats.ConfirmedByMonth(ctx, year)
	if err != nil {
		return fail(c, h.Log, err)
	}
	revenue, err := h.Stats.MonthlyRevenue(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"year":                        year,
		"confirmed_by_month":          counts[:],
		"current_month_revenue_cents": revenue,
	})
}

// Recent lists the latest reservations; ?limit caps at 50.
func (h *StatsHandler) Recent(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Stats.Recent(ctx, limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toDetailResps(items)})
}

// Spent reports what the caller paid over confirmed reservations.
func (h *StatsHandler) Spent(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	total, err := h.Stats.SpentByUser(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": uid, "spent_cents": total})
}
