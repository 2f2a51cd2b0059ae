// Package api exposes slot listing, slot generation, reservation and the booking lifecycle over
// HTTP, plus a websocket endpoint for booking notifications.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semanticallynull/chargeslot-backend/booking"
	"github.com/semanticallynull/chargeslot-backend/internal/identity"
	"github.com/semanticallynull/chargeslot-backend/internal/middleware"
	"github.com/semanticallynull/chargeslot-backend/reservation"
	"github.com/semanticallynull/chargeslot-backend/slot"
	"github.com/semanticallynull/chargeslot-backend/station"
)

type StationStore interface {
	GetStation(ctx context.Context, id uuid.UUID) (station.Station, error)
}

type SlotStore interface {
	List(ctx context.Context, f slot.ListFilter) ([]slot.Slot, error)
}

type BookingStore interface {
	ListByUser(ctx context.Context, userID string) ([]booking.Booking, error)
	ListByOwner(ctx context.Context, ownerID string) ([]booking.Booking, error)
}

type Generator interface {
	Generate(ctx context.Context, stationID uuid.UUID, cfg slot.GenerationConfig) (slot.GenerationResult, error)
}

type Reserver interface {
	Reserve(ctx context.Context, req reservation.Request, userID string) (reservation.Result, error)
}

type Lifecycle interface {
	Decide(ctx context.Context, bookingID uuid.UUID, ownerID string, action booking.Action) (booking.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, caller identity.Caller) (booking.Booking, error)
}

// Realtime attaches a websocket connection to notification rooms.
type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, rooms []string) error
}

type Config struct {
	Stations  StationStore
	Slots     SlotStore
	Bookings  BookingStore
	Generator Generator
	Reserver  Reserver
	Lifecycle Lifecycle
	Realtime  Realtime

	Logger      *slog.Logger
	Registry    *prometheus.Registry
	ServiceName string

	// Auth authenticates every non public route. The caller it resolves must be readable with
	// middleware.GetCaller.
	Auth []gin.HandlerFunc

	MetricsUsername string
	MetricsPassword string
	CORSOrigins     []string

	ReserveRate  float64
	ReserveBurst int

	Now func() time.Time
}

type API struct {
	r   *gin.Engine
	cfg Config
	now func() time.Time
}

func New(cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "chargeslot"
	}
	a := &API{
		r:   gin.New(),
		cfg: cfg,
		now: cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	// Handlers pass the gin context on; it must carry the request's span and deadline.
	a.r.ContextWithFallback = true

	a.r.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		a.r.Use(corsMiddleware(cfg.CORSOrigins))
	}
	a.r.Use(
		middleware.Tracing(cfg.ServiceName),
		middleware.Logging(cfg.Logger),
		middleware.Metrics(cfg.Registry),
	)

	a.r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	a.r.GET("/metrics", a.metricsHandlers()...)
	a.r.GET("/stations/:id", a.stationHandler)
	a.r.GET("/stations/:id/slots", a.listSlotsHandler)

	authed := a.r.Group("/")
	authed.Use(cfg.Auth...)
	{
		if cfg.ReserveRate > 0 {
			limiter := middleware.NewRateLimiter(cfg.ReserveRate, cfg.ReserveBurst)
			authed.POST("/bookings", limiter.Middleware(), a.createBookingHandler)
		} else {
			authed.POST("/bookings", a.createBookingHandler)
		}
		authed.GET("/bookings/me", a.myBookingsHandler)
		authed.DELETE("/bookings/:id", a.cancelBookingHandler)
		authed.GET("/ws", a.wsHandler)
	}

	owner := authed.Group("/owner")
	owner.Use(middleware.RequireRole(identity.RoleOwner, identity.RoleAdmin))
	{
		owner.POST("/stations/:id/slots", a.generateSlotsHandler)
		owner.GET("/bookings", a.ownerBookingsHandler)
		owner.PUT("/bookings/:id/decision", a.decideHandler)
	}

	return a
}

func (a *API) Router() *gin.Engine {
	return a.r
}

func (a *API) metricsHandlers() []gin.HandlerFunc {
	h := gin.WrapH(promhttp.HandlerFor(a.cfg.Registry, promhttp.HandlerOpts{}))
	if a.cfg.MetricsUsername == "" {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{
		gin.BasicAuth(gin.Accounts{a.cfg.MetricsUsername: a.cfg.MetricsPassword}),
		h,
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.UserIDHeader, middleware.RoleHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

// caller is only called on authenticated routes, where the auth middleware guarantees a caller.
func caller(c *gin.Context) (identity.Caller, bool) {
	cl, ok := middleware.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
	}
	return cl, ok
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid " + what + " id"})
		return uuid.Nil, false
	}
	return id, true
}
