package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/show-booking-engine/internal/booking"
	"github.com/iliyamo/show-booking-engine/internal/middleware"
	"github.com/iliyamo/show-booking-engine/internal/model"
	"github.com/iliyamo/show-booking-engine/internal/payment"
)

// BookingHandler exposes the booking endpoint. Degraded reports whether
// the reservation cache was unavailable at startup; when set, bookings
// run straight against the database and reservation ids are rejected.
type BookingHandler struct {
	Orchestrator *booking.Orchestrator
	Degraded     bool
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(orc *booking.Orchestrator, degraded bool) *BookingHandler {
	if orc == nil {
		panic("nil orchestrator passed to NewBookingHandler")
	}
	return &BookingHandler{Orchestrator: orc, Degraded: degraded}
}

// bookRequest is the JSON body for POST /v1/shows/:id/book. Exactly one
// of ReservationID or Count drives the booking; the idempotency key can
// come from the body or the Idempotency-Key header (header wins).
type bookRequest struct {
	ReservationID  int64          `json:"reservation_id"`
	Count          int            `json:"count"`
	IdempotencyKey string         `json:"idempotency_key"`
	Payment        payment.Method `json:"payment"`
}

// BookShow handles POST /v1/shows/:id/book. It converts an ephemeral
// reservation (or a fresh count) into a paid, durable booking. Replayed
// idempotency keys return the original booking with 200 instead of 201.
// Payment declines map to 402 with the gateway's reason; the
// reservation has been released by then.
func (h *BookingHandler) BookShow(c echo.Context) error {
	owner := middleware.Owner(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if key := c.Request().Header.Get("Idempotency-Key"); key != "" {
		body.IdempotencyKey = key
	}
	if body.ReservationID == 0 && body.Count <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservation_id or count is required"})
	}

	req := booking.Request{
		Owner:          owner,
		ShowID:         showID,
		ReservationID:  body.ReservationID,
		Count:          body.Count,
		IdempotencyKey: body.IdempotencyKey,
		Method:         body.Payment,
	}

	var result *booking.Result
	if h.Degraded {
		if body.ReservationID != 0 {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"error": "reservation_store_unavailable",
			})
		}
		result, err = h.Orchestrator.BookDirect(c.Request().Context(), req)
	} else {
		result, err = h.Orchestrator.Book(c.Request().Context(), req)
	}
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, bookingResponse(result))
}

// bookingResponse shapes the booking and its tickets for the client.
func bookingResponse(r *booking.Result) echo.Map {
	b := r.Booking
	out := echo.Map{
		"booking_id":  b.ID,
		"show_id":     b.ShowID,
		"status":      b.Status,
		"total_cents": b.TotalCents,
		"replayed":    r.Replayed,
	}
	if b.PaymentRef != nil {
		out["payment_ref"] = *b.PaymentRef
	}
	if b.ConfirmedAt != nil {
		out["confirmed_at"] = b.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if len(r.Tickets) > 0 {
		seats := make([]echo.Map, 0, len(r.Tickets))
		for _, t := range r.Tickets {
			seats = append(seats, ticketResponse(t))
		}
		out["tickets"] = seats
	}
	return out
}

func ticketResponse(t model.Ticket) echo.Map {
	return echo.Map{
		"seat_id":     t.SeatID,
		"price_cents": t.PriceCents,
	}
}
