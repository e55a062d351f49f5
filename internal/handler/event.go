package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/middleware"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
	"github.com/iliyamo/event-reservation/internal/service"
)

// EventHandler serves event browsing for everyone and event management
// for organizers.
type EventHandler struct {
	Events       *service.EventService
	Reservations *service.ReservationService
	Stats        *service.StatsService
	Log          *slog.Logger
}

// NewEventHandler panics if any service is nil.
func NewEventHandler(events *service.EventService, reservations *service.ReservationService, stats *service.StatsService, logger *slog.Logger) *EventHandler {
	if events == nil || reservations == nil || stats == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{Events: events, Reservations: reservations, Stats: stats, Log: loggerOr(logger, "events")}
}

type eventReq struct {
	Title          string    `json:"title" validate:"required,max=200"`
	Description    string    `json:"description" validate:"max=5000"`
	Category       string    `json:"category" validate:"omitempty,oneof=CONCERT THEATRE CONFERENCE SPORT OTHER"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
	EndsAt         time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Venue          string    `json:"venue" validate:"max=200"`
	City           string    `json:"city" validate:"max=100"`
	Capacity       int       `json:"capacity" validate:"required,min=1"`
	UnitPriceCents int64     `json:"unit_price_cents" validate:"min=0"`
	ImageURL       string    `json:"image_url" validate:"omitempty,url,max=500"`
}

type eventPatchReq struct {
	Title          *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description" validate:"omitempty,max=5000"`
	Category       *string    `json:"category" validate:"omitempty,oneof=CONCERT THEATRE CONFERENCE SPORT OTHER"`
	StartsAt       *time.Time `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at"`
	Venue          *string    `json:"venue" validate:"omitempty,max=200"`
	City           *string    `json:"city" validate:"omitempty,max=100"`
	Capacity       *int       `json:"capacity" validate:"omitempty,min=1"`
	UnitPriceCents *int64     `json:"unit_price_cents" validate:"omitempty,min=0"`
	ImageURL       *string    `json:"image_url" validate:"omitempty,max=500"`
}

func (p eventPatchReq) toPatch() service.EventPatch {
	out := service.EventPatch{
		Title: p.Title, Description: p.Description, StartsAt: p.StartsAt, EndsAt: p.EndsAt,
		Venue: p.Venue, City: p.City, Capacity: p.Capacity, UnitPriceCents: p.UnitPriceCents,
		ImageURL: p.ImageURL,
	}
	if p.Category != nil {
		cat := model.Category(*p.Category)
		out.Category = &cat
	}
	return out
}

// ----- public -----

// Search lists events. Anonymous callers only see published, finished and
// cancelled events; status defaults to PUBLISHED.
//
// Query: category, status, city, min_price, max_price (cents), from, to
// (RFC 3339), q, page, page_size.
func (h *EventHandler) Search(c echo.Context) error {
	f := repository.EventFilter{
		Category: model.Category(strings.ToUpper(strings.TrimSpace(c.QueryParam("category")))),
		Status:   model.EventStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status")))),
		City:     strings.TrimSpace(c.QueryParam("city")),
		Keyword:  strings.TrimSpace(c.QueryParam("q")),
	}
	if f.Status == "" {
		f.Status = model.EventPublished
	}
	if f.Status == model.EventDraft {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "draft events are not listed"})
	}
	var ok bool
	if f.MinPriceCents, ok = queryInt64(c, "min_price"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid min_price"})
	}
	if f.MaxPriceCents, ok = queryInt64(c, "max_price"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid max_price"})
	}
	if f.StartsFrom, ok = queryTime(c, "from"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from, use RFC 3339"})
	}
	if f.EndsBefore, ok = queryTime(c, "to"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to, use RFC 3339"})
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, cancel := reqCtx(c)
	defer cancel()
	items, total, err := h.Events.Search(ctx, f)
	if err != nil {
		return fail(c, h.Log, err)
	}
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      toEventViewResps(items),
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

// Available lists the events open for booking right now.
func (h *EventHandler) Available(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Events.ListAvailable(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toEventViewResps(items)})
}

// Popular lists bookable events by seats held; ?limit defaults to 10.
func (h *EventHandler) Popular(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 10
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Events.Popular(ctx, limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toEventViewResps(items)})
}

func (h *EventHandler) Cities(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	cities, err := h.Events.Cities(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if cities == nil {
		cities = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"data": cities})
}

// Get returns one event with its usage. Drafts are only returned to their
// organizer and admins.
func (h *EventHandler) Get(c echo.Context) error {
	v, err := h.view(c)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return c.JSON(http.StatusOK, toEventViewResp(*v))
}

// Usage returns the seat usage of one event.
func (h *EventHandler) Usage(c echo.Context) error {
	v, err := h.view(c)
	if err != nil || v == nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event_id":  v.ID,
		"capacity":  v.Usage.Capacity,
		"reserved":  v.Usage.Reserved,
		"available": v.Usage.Available(),
		"fill_rate": v.Usage.FillRate(),
		"is_full":   v.Usage.IsFull(),
		"bookable":  h.Events.IsBookable(&v.Event),
	})
}

// view loads the :id event for the caller. A nil view means a response
// has already been written.
func (h *EventHandler) view(c echo.Context) (*service.EventView, error) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, invalidID(c, "event")
	}
	actor, _ := middleware.UserID(c)
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Events.Get(ctx, id, actor)
	if err != nil {
		return nil, fail(c, h.Log, err)
	}
	return v, nil
}

// ----- organizer -----

// Create stores a new DRAFT event owned by the caller.
func (h *EventHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req eventReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ev, err := h.Events.Create(ctx, uid, service.EventInput{
		Title:          req.Title,
		Description:    req.Description,
		Category:       model.Category(req.Category),
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		Venue:          req.Venue,
		City:           req.City,
		Capacity:       req.Capacity,
		UnitPriceCents: req.UnitPriceCents,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toEventResp(ev))
}

// Update applies a partial change to an event.
func (h *EventHandler) Update(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	var req eventPatchReq
	if msg := bind(c, &req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ev, err := h.Events.Update(ctx, id, uid, req.toPatch())
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toEventResp(ev))
}

func (h *EventHandler) Publish(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ev, err := h.Events.Publish(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toEventResp(ev))
}

// Cancel cancels an event and every active reservation on it.
func (h *EventHandler) Cancel(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	ev, cancelled, err := h.Events.Cancel(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if cancelled == nil {
		cancelled = []uint64{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"event":     toEventResp(ev),
		"cancelled": cancelled,
	})
}

func (h *EventHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Events.Delete(ctx, id, uid); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Mine lists the caller's own events, drafts included.
func (h *EventHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Events.ListByOrganizer(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toEventViewResps(items)})
}

// ListReservations lists every reservation of an event for its organizer.
func (h *EventHandler) ListReservations(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	items, err := h.Reservations.ListByEvent(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": toReservationResps(items)})
}

// EventStats reports reservations, fill rate and revenue of one event.
func (h *EventHandler) EventStats(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return invalidID(c, "event")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	st, err := h.Stats.EventStats(ctx, id, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, st)
}

func queryInt64(c echo.Context, name string) (*int64, bool) {
	s := strings.TrimSpace(c.QueryParam(name))
	if s == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func queryTime(c echo.Context, name string) (time.Time, bool) {
	s := strings.TrimSpace(c.QueryParam(name))
	if s == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}
