package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/service"
)

// ReservationHandler exposes booking, confirmation and cancellation of
// reservations. Every method assumes middleware.JWTAuth already ran.
type ReservationHandler struct {
	Reservations *service.ReservationService
	Log          *slog.Logger
}

func NewReservationHandler(reservations *service.ReservationService, logger *slog.Logger) *ReservationHandler {
	if reservations == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: reservations, Log: loggerOr(logger, "reservations")}
}

// Seat bounds are enforced by the service so the configured maximum
// applies.
type reservationReq struct {
	EventID uint64 `json:"event_id" validate:"required"`
	Seats   int    `json:"seats"`
	Note    string `json:"note"`
}

// Create handles POST /v1/reservations and answers 201 with the PENDING
// reservation.
func (h *ReservationHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req reservationReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Reservations.Create(ctx, uid, req.EventID, req.Seats, req.Note)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res))
}

func (h *ReservationHandler) Confirm(c echo.Context) error {
	return h.transition(c, h.Reservations.ConfirmAs)
}

// Cancel handles POST /v1/reservations/:id/cancel. Clients may only cancel
// up to the cutoff before the event; organizers and admins at any time.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	return h.transition(c, h.Reservations.Cancel)
}

func (h *ReservationHandler) transition(c echo.Context, fn func(ctx context.Context, id, actor uint64) (*model.Reservation, error)) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "reservation")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := fn(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

func (h *ReservationHandler) Get(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "reservation")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Reservations.Get(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// Summary handles GET /v1/reservations/:id/summary with a plain text
// receipt.
func (h *ReservationHandler) Summary(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "reservation")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	text, err := h.Reservations.Summary(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.String(http.StatusOK, text)
}

// ByCode handles GET /v1/reservations/code/:code.
func (h *ReservationHandler) ByCode(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Reservations.GetByCodeAs(ctx, c.Param("code"), uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res))
}

// QR renders the reservation code as a PNG for scanning at the door.
func (h *ReservationHandler) QR(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "reservation")
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size < 64 || size > 1024 {
		size = 256
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	res, err := h.Reservations.Get(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if !res.Status.Active() {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "reservation is cancelled"})
	}
	qr, err := qrcode.New(res.Code, qrcode.Medium)
	if err != nil {
		h.Log.Error("qr encode failed", "reservation_id", res.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	png, err := qr.PNG(size)
	if err != nil {
		h.Log.Error("qr render failed", "reservation_id", res.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	c.Response().Header().Set("Cache-Control", "private, max-age=300")
	return c.Blob(http.StatusOK, "image/png", png)
}

// Mine lists the caller's reservations, newest first.
func (h *ReservationHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.ListByUser(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toDetailResps(items)})
}

// Upcoming lists the caller's active reservations on events not started yet.
func (h *ReservationHandler) Upcoming(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.ListUpcomingByUser(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toDetailResps(items)})
}

// Search handles GET /v1/reservations. Clients see their own, organizers
// the ones on their events and admins everything.
//
// Query: event_id, status, code, limit.
func (h *ReservationHandler) Search(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	f := repository.ReservationFilter{
		Status: model.ReservationStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
		Code:   strings.TrimSpace(c.QueryParam("code")),
	}
	if s := c.QueryParam("event_id"); s != "" {
		if f.EventID, err = strconv.ParseUint(s, 10, 64); err != nil {
			return invalidID(c, "event")
		}
	}
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.Search(ctx, f, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toDetailResps(items)})
}
