package model

// Hold is a snapshot entry for one held-but-unconfirmed seat, as read
// back from the shared store for display purposes. It is never used for
// correctness decisions; exclusivity is enforced by the store primitive
// that created it.
type Hold struct {
	SeatID        string `json:"seat_id"`
	ReservationID int64  `json:"reservation_id"`
}
