// Package booking turns an ephemeral reservation into a durable,
// paid-for booking. The orchestrator owns the ordering rules: dedup
// lookup first, the charge and the durable writes inside one database
// transaction, and the ephemeral reservation resolved only after the
// transaction's fate is known.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/model"
	"github.com/iliyamo/show-booking-engine/internal/monitoring"
	"github.com/iliyamo/show-booking-engine/internal/notify"
	"github.com/iliyamo/show-booking-engine/internal/payment"
	"github.com/iliyamo/show-booking-engine/internal/repository"
)

// ErrReservationMismatch is returned when a supplied reservation exists
// but belongs to a different show than the booking request names.
var ErrReservationMismatch = errors.New("booking: reservation does not match request")

// ErrDurableStore wraps unexpected database failures so handlers can map
// them to a single status without inspecting driver errors.
var ErrDurableStore = errors.New("booking: durable store failure")

// PaymentError reports a declined charge. The reservation has been
// released and nothing was written to the durable store.
type PaymentError struct {
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("booking: payment failed: %s", e.Reason)
}

// SeatsSoldError reports seats that already carry a ticket in the
// durable store. This can only happen when a hold expired and the seats
// were sold to someone else before this booking reached the database.
type SeatsSoldError struct {
	Seats []string
}

func (e *SeatsSoldError) Error() string {
	return fmt.Sprintf("booking: seats already sold: %v", e.Seats)
}

// DurableStore is the slice of repository.Store the orchestrator needs.
type DurableStore interface {
	FindBookingByKey(ctx context.Context, owner string, showID uint64, key string) (*model.Booking, []model.Ticket, error)
	Transact(ctx context.Context, fn func(tx repository.Tx) error) error
}

// Request describes one booking attempt. When ReservationID is set the
// orchestrator converts that existing reservation (count or seat mode);
// when it is zero a fresh count-mode reservation for Count seats is
// taken as part of the call.
type Request struct {
	Owner          string
	ShowID         uint64
	ReservationID  int64
	Count          int
	IdempotencyKey string
	Method         payment.Method
}

// Result is the outcome of a successful (or replayed) booking.
type Result struct {
	Booking  *model.Booking
	Tickets  []model.Ticket
	Charge   *payment.ChargeResult
	Replayed bool
}

// Orchestrator coordinates the cache, the payment gateway and the
// durable store for the booking flow.
type Orchestrator struct {
	store    DurableStore
	ledger   *cache.CapacityLedger
	holds    *cache.SeatHoldTable
	gateway  payment.Gateway
	notifier notify.Notifier
	monitor  *monitoring.Monitor
}

// NewOrchestrator wires the orchestrator. notifier may be notify.Nop{}
// but not nil.
func NewOrchestrator(store DurableStore, ledger *cache.CapacityLedger, holds *cache.SeatHoldTable, gateway payment.Gateway, notifier notify.Notifier, monitor *monitoring.Monitor) *Orchestrator {
	return &Orchestrator{
		store:    store,
		ledger:   ledger,
		holds:    holds,
		gateway:  gateway,
		notifier: notifier,
		monitor:  monitor,
	}
}

// acquired captures the reservation the booking runs against and how to
// resolve it once the transaction's fate is known.
type acquired struct {
	reservation *model.Reservation
	seats       []string // nil in count mode
	n           int
}

// Book runs the full booking flow:
//
//  1. Replay: a booking already stored under the idempotency key is
//     returned as-is, no charge, no writes.
//  2. Acquire: validate the supplied reservation, or take a fresh
//     count-mode one.
//  3. Transact: lock the show row, re-check capacity and seat
//     availability against durable truth, charge, then write the
//     booking, its tickets and the capacity decrement. Any failure
//     rolls all of it back.
//  4. Resolve: on commit the ephemeral reservation is confirmed; on any
//     failure after acquisition it is released so capacity and seats
//     return to the pool.
//
// A validation failure on a supplied reservation (unknown id, wrong
// owner, wrong show) does NOT release it; the orchestrator only
// resolves reservations it has successfully bound to this request.
func (o *Orchestrator) Book(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if req.IdempotencyKey != "" {
		b, tickets, err := o.store.FindBookingByKey(ctx, req.Owner, req.ShowID, req.IdempotencyKey)
		if err != nil && !errors.Is(err, repository.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrDurableStore, err)
		}
		if b != nil {
			o.monitor.TrackBooking("replayed")
			return &Result{Booking: b, Tickets: tickets, Replayed: true}, nil
		}
	}

	acq, err := o.acquire(ctx, req)
	if err != nil {
		o.monitor.TrackBooking("reservation_failed")
		return nil, err
	}

	committed := false
	defer func() {
		o.resolve(acq, committed)
		o.monitor.TrackBookingDuration(start)
	}()

	var (
		booking   *model.Booking
		tickets   []model.Ticket
		charge    *payment.ChargeResult
		remaining int64
	)
	err = o.store.Transact(ctx, func(tx repository.Tx) error {
		show, err := tx.LockShow(ctx, req.ShowID)
		if err != nil {
			return err
		}
		if show.Capacity < int64(acq.n) {
			return repository.ErrCapacityExhausted
		}
		remaining = show.Capacity - int64(acq.n)
		if len(acq.seats) > 0 {
			sold, err := tx.SoldSeats(ctx, req.ShowID, acq.seats)
			if err != nil {
				return err
			}
			if len(sold) > 0 {
				return &SeatsSoldError{Seats: sold}
			}
		}

		total := int64(show.TicketPriceCents) * int64(acq.n)
		charge, err = o.gateway.Charge(ctx, total, req.Method, req.IdempotencyKey)
		if err != nil {
			return err
		}
		o.monitor.TrackCharge(charge.Status)
		if charge.Status != payment.StatusSuccess {
			return &PaymentError{Reason: charge.Reason}
		}

		now := time.Now().UTC()
		booking = &model.Booking{
			Owner:         req.Owner,
			ShowID:        req.ShowID,
			ReservationID: acq.reservation.ID,
			Status:        model.BookingConfirmed,
			TotalCents:    total,
			CreatedAt:     now,
			ConfirmedAt:   &now,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			booking.IdempotencyKey = &key
		}
		if charge.TransactionID != "" {
			ref := charge.TransactionID
			booking.PaymentRef = &ref
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}

		tickets = tickets[:0]
		for _, seat := range acq.seats {
			tickets = append(tickets, model.Ticket{
				BookingID:  booking.ID,
				ShowID:     req.ShowID,
				SeatID:     seat,
				PriceCents: show.TicketPriceCents,
				BookedAt:   now,
			})
		}
		if len(tickets) > 0 {
			if err := tx.InsertTickets(ctx, tickets); err != nil {
				return err
			}
		}
		return tx.DecrementCapacity(ctx, req.ShowID, acq.n)
	})
	if err != nil {
		return nil, o.classify(err)
	}
	committed = true

	o.afterCommit(ctx, req, acq, booking, remaining)
	o.monitor.TrackBooking("confirmed")

	return &Result{Booking: booking, Tickets: tickets, Charge: charge}, nil
}

// acquire binds the request to a reservation. A supplied id is validated
// against the live record; otherwise a fresh count-mode reservation is
// taken from the capacity ledger.
func (o *Orchestrator) acquire(ctx context.Context, req Request) (*acquired, error) {
	if req.ReservationID != 0 {
		res, err := o.holds.Reservation(ctx, req.ReservationID)
		if err != nil {
			return nil, err
		}
		if res.Owner != req.Owner {
			return nil, cache.ErrNotAuthorized
		}
		if res.ShowID != req.ShowID {
			return nil, ErrReservationMismatch
		}
		acq := &acquired{reservation: res, n: res.Count}
		if res.Mode == model.ModeSeats {
			acq.seats = res.Seats
			acq.n = len(res.Seats)
		}
		return acq, nil
	}

	if req.Count <= 0 {
		return nil, cache.ErrReservationNotFound
	}
	grant, err := o.ledger.Reserve(ctx, req.ShowID, req.Count, req.Owner)
	if err != nil {
		return nil, err
	}
	return &acquired{
		reservation: &model.Reservation{
			ID:     grant.ReservationID,
			Owner:  req.Owner,
			ShowID: req.ShowID,
			Mode:   model.ModeCount,
			Count:  req.Count,
		},
		n: req.Count,
	}, nil
}

// resolve settles the ephemeral reservation after the transaction's fate
// is known. Errors here are logged and swallowed: on the commit path the
// durable booking is already the source of truth, and on the failure
// path the record's TTL bounds how long a leaked hold can live.
func (o *Orchestrator) resolve(acq *acquired, committed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res := acq.reservation
	if committed {
		var err error
		if res.Mode == model.ModeSeats {
			err = o.holds.ConfirmHold(ctx, res.ID, res.Owner)
		} else {
			err = o.ledger.Confirm(ctx, res.ID, res.Owner, res.ShowID, acq.n)
		}
		if err != nil {
			log.Printf("booking: confirm of reservation %d failed after commit: %v", res.ID, err)
		}
		return
	}

	var err error
	if res.Mode == model.ModeSeats {
		err = o.holds.ReleaseHold(ctx, res.ID)
	} else {
		err = o.ledger.Release(ctx, res.ShowID, res.ID, acq.n)
	}
	if err != nil {
		log.Printf("booking: release of reservation %d failed: %v", res.ID, err)
	}
}

// afterCommit refreshes the cached capacity counter from the value the
// transaction just wrote and publishes the sale event. Both are
// best-effort: the booking is already durable.
func (o *Orchestrator) afterCommit(ctx context.Context, req Request, acq *acquired, b *model.Booking, remaining int64) {
	if err := o.ledger.SetShowCapacity(ctx, req.ShowID, remaining); err != nil {
		log.Printf("booking: capacity cache refresh for show %d failed: %v", req.ShowID, err)
	}

	payload := map[string]interface{}{
		"booking_id":  b.ID,
		"owner":       b.Owner,
		"tickets":     acq.n,
		"total_cents": b.TotalCents,
	}
	if len(acq.seats) > 0 {
		payload["seats"] = acq.seats
	}
	if err := o.notifier.Publish(ctx, req.ShowID, notify.EventShowSold, payload); err != nil {
		log.Printf("booking: publish of sale event for booking %d failed: %v", b.ID, err)
	}
}

// classify maps transaction failures onto the package error taxonomy.
func (o *Orchestrator) classify(err error) error {
	var pe *PaymentError
	var se *SeatsSoldError
	switch {
	case errors.As(err, &pe):
		o.monitor.TrackBooking("payment_failed")
		return err
	case errors.As(err, &se):
		o.monitor.TrackBooking("seats_sold")
		return err
	case errors.Is(err, repository.ErrCapacityExhausted):
		o.monitor.TrackBooking("capacity_exhausted")
		return err
	case errors.Is(err, repository.ErrShowNotFound):
		o.monitor.TrackBooking("show_not_found")
		return err
	case errors.Is(err, repository.ErrDuplicateBooking):
		o.monitor.TrackBooking("duplicate")
		return err
	default:
		o.monitor.TrackBooking("error")
		return fmt.Errorf("%w: %v", ErrDurableStore, err)
	}
}

// BookDirect books count seats straight against the durable store,
// bypassing the reservation cache entirely. This is the degraded path
// for when Redis is unavailable: correctness comes from the row lock
// and the guarded decrement alone, at the cost of serializing all
// bookings for the show on the database.
func (o *Orchestrator) BookDirect(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	defer o.monitor.TrackBookingDuration(start)

	if req.Count <= 0 {
		return nil, errors.New("booking: count must be positive")
	}

	if req.IdempotencyKey != "" {
		b, tickets, err := o.store.FindBookingByKey(ctx, req.Owner, req.ShowID, req.IdempotencyKey)
		if err != nil && !errors.Is(err, repository.ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrDurableStore, err)
		}
		if b != nil {
			o.monitor.TrackBooking("replayed")
			return &Result{Booking: b, Tickets: tickets, Replayed: true}, nil
		}
	}

	var (
		booking *model.Booking
		charge  *payment.ChargeResult
	)
	err := o.store.Transact(ctx, func(tx repository.Tx) error {
		show, err := tx.LockShow(ctx, req.ShowID)
		if err != nil {
			return err
		}
		if show.Capacity < int64(req.Count) {
			return repository.ErrCapacityExhausted
		}

		total := int64(show.TicketPriceCents) * int64(req.Count)
		charge, err = o.gateway.Charge(ctx, total, req.Method, req.IdempotencyKey)
		if err != nil {
			return err
		}
		o.monitor.TrackCharge(charge.Status)
		if charge.Status != payment.StatusSuccess {
			return &PaymentError{Reason: charge.Reason}
		}

		now := time.Now().UTC()
		booking = &model.Booking{
			Owner:       req.Owner,
			ShowID:      req.ShowID,
			Status:      model.BookingConfirmed,
			TotalCents:  total,
			CreatedAt:   now,
			ConfirmedAt: &now,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			booking.IdempotencyKey = &key
		}
		if charge.TransactionID != "" {
			ref := charge.TransactionID
			booking.PaymentRef = &ref
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			return err
		}
		return tx.DecrementCapacity(ctx, req.ShowID, req.Count)
	})
	if err != nil {
		return nil, o.classify(err)
	}

	o.monitor.TrackBooking("confirmed")
	return &Result{Booking: booking, Charge: charge}, nil
}
