// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/show-booking-engine/internal/config"
	"github.com/iliyamo/show-booking-engine/internal/handler"
	"github.com/iliyamo/show-booking-engine/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// the health check and the Prometheus metrics scrape target.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterReservations registers the reservation lifecycle and show
// introspection endpoints under /v1. Every route requires a valid
// access token and passes through the token-bucket rate limiter; the
// write paths are the ones worth limiting, but applying the limiter to
// the whole group keeps snapshot scraping in check too.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(rl, rdb))

	// Reservation lifecycle.
	g.POST("/shows/:id/reserve", h.ReserveByCount)
	g.POST("/shows/:id/hold", h.HoldSeats)
	g.POST("/reservations/:id/confirm", h.ConfirmReservation)
	g.POST("/reservations/:id/release", h.ReleaseReservation)

	// Show introspection.
	g.GET("/shows/:id/capacity", h.RemainingCapacity)
	g.GET("/shows/:id/holds", h.ActiveHolds)
	g.GET("/shows/:id/reservations", h.ActiveReservations)
}

// RegisterBooking registers the booking endpoint under the same
// authenticated, rate-limited /v1 group.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.NewTokenBucket(rl, rdb))

	g.POST("/shows/:id/book", h.BookShow)
}
