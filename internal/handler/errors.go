package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/show-booking-engine/internal/booking"
	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/repository"
)

// writeError maps the engine's error taxonomy onto HTTP statuses and a
// small JSON error body. Every handler funnels failures through here so
// the same condition always produces the same status.
//
//	insufficient capacity / bad reservation binding -> 400
//	payment declined                                -> 402
//	foreign reservation                             -> 403
//	unknown show or reservation                     -> 404
//	contended lock, held or sold seats              -> 409
//	cache unreachable                               -> 503
func writeError(c echo.Context, err error) error {
	var seatHeld *cache.SeatHeldError
	var seatsSold *booking.SeatsSoldError
	var payErr *booking.PaymentError

	switch {
	case errors.Is(err, cache.ErrInsufficientCapacity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "insufficient_capacity"})
	case errors.Is(err, booking.ErrReservationMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_mismatch"})
	case errors.As(err, &payErr):
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":  "payment_failed",
			"reason": payErr.Reason,
		})
	case errors.Is(err, cache.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not_authorized"})
	case errors.Is(err, cache.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation_not_found"})
	case errors.Is(err, repository.ErrShowNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "show_not_found"})
	case errors.Is(err, cache.ErrLockAcquisitionFailed):
		// Another reserver holds the show lock; the client should retry.
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusConflict, echo.Map{"error": "show_busy"})
	case errors.As(err, &seatHeld):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "seat_already_held",
			"seat":  seatHeld.Seat,
		})
	case errors.As(err, &seatsSold):
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "seats_already_sold",
			"seats": seatsSold.Seats,
		})
	case errors.Is(err, repository.ErrCapacityExhausted):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity_exhausted"})
	case errors.Is(err, repository.ErrDuplicateBooking):
		return c.JSON(http.StatusConflict, echo.Map{"error": "duplicate_booking"})
	case errors.Is(err, cache.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "reservation_store_unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error"})
	}
}
