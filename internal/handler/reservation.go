package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/middleware"
	"github.com/iliyamo/show-booking-engine/internal/model"
	"github.com/iliyamo/show-booking-engine/internal/monitoring"
	"github.com/iliyamo/show-booking-engine/internal/notify"
	"github.com/iliyamo/show-booking-engine/internal/repository"
)

// ReservationHandler groups the dependencies for the ephemeral
// reservation endpoints: count-based reserves against the capacity
// ledger, per-seat holds, and the confirm/release lifecycle shared by
// both modes. JWT authentication has already run; the owner identity is
// read from the request context.
type ReservationHandler struct {
	Ledger   *cache.CapacityLedger
	Holds    *cache.SeatHoldTable
	Shows    *repository.ShowRepo
	Notifier notify.Notifier
	Monitor  *monitoring.Monitor
}

// NewReservationHandler constructs a ReservationHandler. All
// dependencies must be non-nil; pass notify.Nop{} when no broker is
// configured.
func NewReservationHandler(ledger *cache.CapacityLedger, holds *cache.SeatHoldTable, shows *repository.ShowRepo, notifier notify.Notifier, monitor *monitoring.Monitor) *ReservationHandler {
	if ledger == nil || holds == nil || shows == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Ledger: ledger, Holds: holds, Shows: shows, Notifier: notifier, Monitor: monitor}
}

// ReserveByCount handles POST /v1/shows/:id/reserve. It atomically
// takes `count` seats from the show's remaining capacity and returns a
// reservation id the client must later confirm or release. 400 when
// capacity is insufficient, 409 when another reserver holds the show
// lock (retry), 404 when the show does not exist.
func (h *ReservationHandler) ReserveByCount(c echo.Context) error {
	owner := middleware.Owner(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Count <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "count must be positive"})
	}

	ctx := c.Request().Context()
	if err := h.ensureCapacity(c, showID); err != nil {
		return writeError(c, err)
	}

	res, err := h.Ledger.Reserve(ctx, showID, body.Count, owner)
	if err != nil {
		h.Monitor.TrackReservation(string(model.ModeCount), "failed")
		return writeError(c, err)
	}
	h.Monitor.TrackReservation(string(model.ModeCount), "granted")

	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ReservationID,
		"remaining":      res.Remaining,
		"expires_in":     int64(h.Ledger.ReservationTTL / time.Second),
	})
}

// HoldSeats handles POST /v1/shows/:id/hold. It grants an exclusive
// hold on every requested seat or none at all; a conflict names the
// first contested seat with a 409. The body carries a "seats" array of
// seat labels and an optional "ttl_seconds" override.
func (h *ReservationHandler) HoldSeats(c echo.Context) error {
	owner := middleware.Owner(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	var body struct {
		Seats      []string `json:"seats"`
		TTLSeconds int      `json:"ttl_seconds"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	// Deduplicate while preserving order.
	seen := make(map[string]struct{}, len(body.Seats))
	seats := make([]string, 0, len(body.Seats))
	for _, s := range body.Seats {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			seats = append(seats, s)
		}
	}
	if len(seats) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seats is required"})
	}

	ctx := c.Request().Context()
	res, err := h.Holds.HoldSeats(ctx, owner, showID, seats, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		h.Monitor.TrackReservation(string(model.ModeSeats), "failed")
		return writeError(c, err)
	}
	h.Monitor.TrackReservation(string(model.ModeSeats), "granted")
	h.Monitor.TrackSeatHolds("held", len(res.Seats))

	h.publish(c, showID, notify.EventSeatHeld, echo.Map{
		"reservation_id": res.ID,
		"seats":          res.Seats,
	})

	ttl := time.Duration(body.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = h.Holds.HoldTTL
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"reservation_id": res.ID,
		"seats":          res.Seats,
		"expires_in":     int64(ttl / time.Second),
	})
}

// ConfirmReservation handles POST /v1/reservations/:id/confirm. The
// reservation record decides the mode: a seat-mode reservation drops
// its per-seat holds, a count-mode one keeps the already-decremented
// capacity. Either way the ephemeral record is gone afterwards. 404
// when the reservation is unknown or expired, 403 when it belongs to a
// different owner.
func (h *ReservationHandler) ConfirmReservation(c echo.Context) error {
	owner := middleware.Owner(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || resID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx := c.Request().Context()
	res, err := h.Holds.Reservation(ctx, resID)
	if err != nil {
		return writeError(c, err)
	}
	if res.Owner != owner {
		return writeError(c, cache.ErrNotAuthorized)
	}

	if res.Mode == model.ModeSeats {
		err = h.Holds.ConfirmHold(ctx, resID, owner)
	} else {
		err = h.Ledger.Confirm(ctx, resID, owner, res.ShowID, res.Count)
	}
	if err != nil {
		return writeError(c, err)
	}
	if res.Mode == model.ModeSeats {
		h.Monitor.TrackSeatHolds("confirmed", len(res.Seats))
	}

	h.publish(c, res.ShowID, notify.EventSeatConfirmed, echo.Map{
		"reservation_id": resID,
		"mode":           res.Mode,
		"count":          res.Count,
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "confirmed", "reservation_id": resID})
}

// ReleaseReservation handles POST /v1/reservations/:id/release. For a
// count-mode reservation the seats return to the capacity counter; for
// a seat-mode one the per-seat holds are dropped. Releasing a
// reservation that is already gone succeeds as a no-op, so clients can
// retry freely.
func (h *ReservationHandler) ReleaseReservation(c echo.Context) error {
	owner := middleware.Owner(c)
	if owner == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || resID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}

	ctx := c.Request().Context()
	res, err := h.Holds.Reservation(ctx, resID)
	if errors.Is(err, cache.ErrReservationNotFound) {
		// Already resolved or expired; release is idempotent.
		return c.JSON(http.StatusOK, echo.Map{"status": "released", "reservation_id": resID})
	}
	if err != nil {
		return writeError(c, err)
	}
	if res.Owner != owner {
		return writeError(c, cache.ErrNotAuthorized)
	}

	if res.Mode == model.ModeSeats {
		err = h.Holds.ReleaseHold(ctx, resID)
	} else {
		err = h.Ledger.Release(ctx, res.ShowID, resID, res.Count)
	}
	if err != nil {
		return writeError(c, err)
	}
	if res.Mode == model.ModeSeats {
		h.Monitor.TrackSeatHolds("released", len(res.Seats))
	}

	h.publish(c, res.ShowID, notify.EventSeatReleased, echo.Map{
		"reservation_id": resID,
		"mode":           res.Mode,
		"count":          res.Count,
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "released", "reservation_id": resID})
}

// RemainingCapacity handles GET /v1/shows/:id/capacity. It serves the
// cached counter, priming it from the durable store on first access.
func (h *ReservationHandler) RemainingCapacity(c echo.Context) error {
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	ctx := c.Request().Context()
	if err := h.ensureCapacity(c, showID); err != nil {
		return writeError(c, err)
	}
	n, _, err := h.Ledger.ShowCapacity(ctx, showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "remaining": n})
}

// ActiveHolds handles GET /v1/shows/:id/holds. Display-only snapshot of
// the currently held seats; a hold listed here may expire at any moment.
func (h *ReservationHandler) ActiveHolds(c echo.Context) error {
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	holds, err := h.Holds.ActiveHolds(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "holds": holds})
}

// ActiveReservations handles GET /v1/shows/:id/reservations. Admin
// snapshot of the live count-mode reservations against the show.
func (h *ReservationHandler) ActiveReservations(c echo.Context) error {
	showID, err := parseShowID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	list, err := h.Ledger.ActiveReservations(c.Request().Context(), showID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"show_id": showID, "reservations": list})
}

// ensureCapacity primes the cached capacity counter from the durable
// store the first time a show is touched. Subsequent requests find the
// counter present and skip the database read.
func (h *ReservationHandler) ensureCapacity(c echo.Context, showID uint64) error {
	ctx := c.Request().Context()
	_, ok, err := h.Ledger.ShowCapacity(ctx, showID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	show, err := h.Shows.GetByID(ctx, showID)
	if err != nil {
		return err
	}
	// SET NX: if a reserve landed between our read and this write, its
	// decremented counter wins over the stale durable value.
	_, err = h.Ledger.PrimeShowCapacity(ctx, showID, show.Capacity)
	return err
}

// publish sends a best-effort event; failures are already logged by the
// notifier and never fail the request.
func (h *ReservationHandler) publish(c echo.Context, showID uint64, eventType string, payload echo.Map) {
	_ = h.Notifier.Publish(c.Request().Context(), showID, eventType, payload)
}

func parseShowID(c echo.Context) (uint64, error) {
	showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showID == 0 {
		return 0, errors.New("invalid show id")
	}
	return showID, nil
}
