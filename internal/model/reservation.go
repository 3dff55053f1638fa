package model

// ReservationMode distinguishes the two kinds of ephemeral grants the
// shared store can hand out: a bare seat count against the capacity
// counter, or an explicit list of held seats.
type ReservationMode string

const (
	ModeCount ReservationMode = "count"
	ModeSeats ReservationMode = "seats"
)

// Reservation is the ephemeral, TTL-bound record written by a successful
// capacity reservation or seat hold. It is immutable once created and is
// destroyed by exactly one of: confirm (converted into a durable booking)
// or release (explicit, or TTL expiry enforced by the shared store).
//
// Expiry of a count-based reservation does NOT restore capacity; only an
// explicit release does. Callers must treat an unresolved reservation as
// in limbo until they confirm or release it.
//
// Fields:
//  ID        – monotonic, globally unique id minted by the shared store.
//  Owner     – opaque identity of the requesting client.
//  ShowID    – show the grant applies to.
//  Mode      – count-based or seat-list grant.
//  Count     – number of seats reserved (count mode).
//  Seats     – held seat ids (seats mode).
//  CreatedAt – unix seconds at creation, stamped by the store.
type Reservation struct {
	ID        int64
	Owner     string
	ShowID    uint64
	Mode      ReservationMode
	Count     int
	Seats     []string
	CreatedAt int64
}
