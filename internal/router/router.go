package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-reservation/internal/handler"
	"github.com/iliyamo/event-reservation/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Events       *handler.EventHandler
	Reservations *handler.ReservationHandler
	Stats        *handler.StatsHandler
}

// Options carries the middleware shared by the /v1 routes. RateLimit and
// Cache may be nil.
type Options struct {
	JWTSecret string
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

func (o Options) limited(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if o.RateLimit == nil {
		return mws
	}
	return append([]echo.MiddlewareFunc{o.RateLimit}, mws...)
}

// Register mounts every route of the API on e.
func Register(e *echo.Echo, h Handlers, o Options) {
	RegisterRoutes(e, h.Health)
	RegisterAuth(e, h.Auth, o)
	RegisterPublic(e, h.Events, o)
	RegisterOrganizer(e, h.Events, h.Stats, o)
	RegisterReservations(e, h.Reservations, h.Stats, o)
	RegisterAdmin(e, h.Auth, h.Stats, o)
}

// RegisterRoutes registers the probes, which skip every middleware.
func RegisterRoutes(e *echo.Echo, hh *handler.HealthHandler) {
	e.GET("/healthz", hh.Health)
	e.GET("/readyz", hh.Ready)
}

// RegisterAuth registers sign-up, login and the account endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, o Options) {
	g := e.Group("/v1/auth", o.limited()...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	me := e.Group("/v1/me", o.limited(middleware.JWTAuth(o.JWTSecret))...)
	me.GET("", a.Me)
	me.PATCH("", a.UpdateMe)
	me.DELETE("", a.DeleteMe)
	me.PUT("/password", a.ChangePassword)
	me.POST("/deactivate", a.DeactivateMe)
	me.GET("/stats", a.MyStats)
}

// RegisterPublic registers event browsing. A token is optional; when
// present it lets organizers read their own drafts. Anonymous responses
// may be served from the cache.
func RegisterPublic(e *echo.Echo, ev *handler.EventHandler, o Options) {
	mws := []echo.MiddlewareFunc{middleware.OptionalJWT(o.JWTSecret)}
	if o.Cache != nil {
		mws = append(mws, o.Cache)
	}
	g := e.Group("/v1/events", o.limited(mws...)...)
	g.GET("", ev.Search)
	g.GET("/available", ev.Available)
	g.GET("/popular", ev.Popular)
	g.GET("/cities", ev.Cities)
	g.GET("/:id", ev.Get)
	g.GET("/:id/usage", ev.Usage)
}

// RegisterOrganizer registers event management for organizers and admins.
func RegisterOrganizer(e *echo.Echo, ev *handler.EventHandler, st *handler.StatsHandler, o Options) {
	g := e.Group("/v1", o.limited(
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireRole("ORGANIZER", "ADMIN"),
	)...)

	g.POST("/events", ev.Create)
	g.PUT("/events/:id", ev.Update)
	g.PATCH("/events/:id", ev.Update)
	g.DELETE("/events/:id", ev.Delete)
	g.POST("/events/:id/publish", ev.Publish)
	g.POST("/events/:id/cancel", ev.Cancel)
	g.GET("/events/:id/reservations", ev.ListReservations)
	g.GET("/events/:id/stats", ev.EventStats)

	g.GET("/organizer/events", ev.Mine)
	g.GET("/organizer/stats", st.Organizer)
}

// RegisterReservations registers booking endpoints for any signed-in user.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, st *handler.StatsHandler, o Options) {
	g := e.Group("/v1", o.limited(middleware.JWTAuth(o.JWTSecret))...)

	g.POST("/reservations", r.Create)
	g.GET("/reservations", r.Search)
	g.GET("/reservations/mine", r.Mine)
	g.GET("/reservations/upcoming", r.Upcoming)
	g.GET("/reservations/code/:code", r.ByCode)
	g.GET("/reservations/:id", r.Get)
	g.GET("/reservations/:id/qr", r.QR)
	g.GET("/reservations/:id/summary", r.Summary)
	g.POST("/reservations/:id/confirm", r.Confirm)
	g.POST("/reservations/:id/cancel", r.Cancel)

	g.GET("/stats/spent", st.Spent)
}

// RegisterAdmin registers the admin-only endpoints.
func RegisterAdmin(e *echo.Echo, a *handler.AuthHandler, st *handler.StatsHandler, o Options) {
	g := e.Group("/v1/admin", o.limited(
		middleware.JWTAuth(o.JWTSecret),
		middleware.RequireRole("ADMIN"),
	)...)

	g.GET("/users", a.ListUsers)
	g.DELETE("/users/:id", a.DeleteUser)
	g.GET("/users/:id/stats", a.UserStats)
	g.POST("/users/:id/activate", a.Activate)
	g.POST("/users/:id/deactivate", a.Deactivate)
	g.PUT("/users/:id/role", a.ChangeRole)
	g.GET("/stats", st.Global)
	g.GET("/stats/monthly", st.Monthly)
	g.GET("/reservations/recent", st.Recent)
}
