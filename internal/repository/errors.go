// Package repository defines error types that are reused across the
// durable-store accessors. These sentinel values let the orchestrator
// and handlers distinguish failure scenarios without inspecting driver
// errors.
package repository

import "errors"

// ErrShowNotFound indicates that a show was not located in the DB.
var ErrShowNotFound = errors.New("show not found")

// ErrBookingNotFound indicates that no booking matches the lookup.
var ErrBookingNotFound = errors.New("booking not found")

// ErrCapacityExhausted is returned when a guarded capacity decrement
// would drive the durable counter negative. It means the row-lock
// re-validation caught a divergence the cache let through.
var ErrCapacityExhausted = errors.New("durable capacity exhausted")

// ErrDuplicateBooking is returned when the unique constraint on
// (owner, show_id, idempotency_key) rejects an insert. It is the second
// line of defense against double bookings; callers should re-read the
// existing booking and return its outcome.
var ErrDuplicateBooking = errors.New("duplicate booking for idempotency key")
