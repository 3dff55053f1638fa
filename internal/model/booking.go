package model

import "time"

// Booking records a completed (or aborted) purchase in the durable
// store. A booking reaches CONFIRMED only after payment success, and at
// most once per (owner, show, idempotency key) thanks to the unique
// constraint on those columns.
//
// Fields:
//  ID             – primary key identifier.
//  Owner          – identity of the purchasing client.
//  ShowID         – show the tickets belong to.
//  ReservationID  – ephemeral reservation the booking was converted from.
//  IdempotencyKey – client-supplied dedup token (nullable).
//  Status         – RESERVED, CONFIRMED or CANCELLED.
//  PaymentRef     – gateway transaction id (nullable).
//  TotalCents     – total charged amount in cents.
//  CreatedAt      – creation timestamp.
//  ConfirmedAt    – when payment succeeded (nullable).
type Booking struct {
	ID             uint64
	Owner          string
	ShowID         uint64
	ReservationID  int64
	IdempotencyKey *string
	Status         string
	PaymentRef     *string
	TotalCents     int64
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// Booking status values as stored in bookings.status.
const (
	BookingReserved  = "RESERVED"
	BookingConfirmed = "CONFIRMED"
	BookingCancelled = "CANCELLED"
)

// Ticket is one sold seat under a booking. SeatID is the row+number
// label shown to the customer ("A1"); the (show_id, seat_id) pair is
// unique so a seat can never be ticketed twice.
type Ticket struct {
	ID         uint64
	BookingID  uint64
	ShowID     uint64
	SeatID     string
	PriceCents uint32
	BookedAt   time.Time
}
