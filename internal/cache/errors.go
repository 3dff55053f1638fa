// Package cache implements the shared-store side of the booking engine:
// the per-show capacity ledger, the per-seat hold table and the ephemeral
// reservation records both of them mint. All mutations run as server-side
// scripts so that concurrent clients only ever observe complete
// transitions. Errors raised inside the store are translated to the
// sentinel values below at this boundary and never leak as raw client
// errors.
package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInsufficientCapacity is returned when a show does not have enough
// remaining capacity for the requested count. Handlers should translate
// this into an HTTP 400 response.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrLockAcquisitionFailed means another writer holds the show lock.
// It is retryable: the caller should try again shortly rather than treat
// the show as sold out.
var ErrLockAcquisitionFailed = errors.New("show lock held by another writer")

// ErrReservationNotFound is returned when a reservation id is unknown,
// expired or already consumed.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrNotAuthorized is returned when a reservation exists but belongs to
// a different owner.
var ErrNotAuthorized = errors.New("reservation owned by another user")

// ErrStoreUnavailable wraps any failure to reach the shared store. The
// engine refuses operations in this state instead of falling back to
// unsynchronized local decisions.
var ErrStoreUnavailable = errors.New("shared store unavailable")

// SeatHeldError reports the first seat of a batch hold that was already
// held by someone else. The whole batch has been rolled back when this
// is returned.
type SeatHeldError struct {
	Seat string
}

func (e *SeatHeldError) Error() string {
	return fmt.Sprintf("seat already held: %s", e.Seat)
}

// AsSeatHeld unwraps err into a *SeatHeldError if it is one.
func AsSeatHeld(err error) (*SeatHeldError, bool) {
	var sh *SeatHeldError
	if errors.As(err, &sh) {
		return sh, true
	}
	return nil, false
}

const seatHeldPrefix = "SEAT_ALREADY_HELD:"

// translate maps script error replies onto the package taxonomy. Reply
// errors carry the exact message produced by redis.error_reply; anything
// else (network failure, timeout, closed client) counts as the store
// being unavailable.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch msg := err.Error(); {
	case msg == "LOCK_ACQUISITION_FAILED":
		return ErrLockAcquisitionFailed
	case msg == "INSUFFICIENT_CAPACITY":
		return ErrInsufficientCapacity
	case msg == "RESERVATION_NOT_FOUND":
		return ErrReservationNotFound
	case msg == "NOT_AUTHORIZED":
		return ErrNotAuthorized
	case strings.HasPrefix(msg, seatHeldPrefix):
		return &SeatHeldError{Seat: strings.TrimPrefix(msg, seatHeldPrefix)}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
