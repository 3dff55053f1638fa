package cache

import (
	"fmt"
	"time"
)

// Key shapes shared by every script in this package. The reservation and
// hold keys are also rebuilt inside the Lua scripts from their arguments,
// so the formats here and in scripts.go must stay in lockstep.
const (
	// counterKey is the global INCR source for reservation ids. Ids are
	// monotonic and never reused, even across count and seat-hold modes.
	counterKey = "reservation_counter"
)

// Default lifetimes for the ephemeral state written by this package.
// The lock TTL is generous relative to a normal check-and-decrement but
// short enough to bound limbo if a client dies mid-script.
var (
	DefaultLockTTL        = 10 * time.Second
	DefaultReservationTTL = 5 * time.Minute
	DefaultHoldTTL        = 2 * time.Minute
)

func capacityKey(showID uint64) string { return fmt.Sprintf("show:%d:capacity", showID) }
func lockKey(showID uint64) string     { return fmt.Sprintf("lock:show:%d", showID) }

func reservationKey(id int64) string { return fmt.Sprintf("reservation:%d", id) }
func bookingKey(id int64) string     { return fmt.Sprintf("booking:%d", id) }

func holdKey(showID uint64, seatID string) string {
	return fmt.Sprintf("hold:show:%d:seat:%s", showID, seatID)
}

// holdPattern matches every live hold for a show; used only by the
// snapshot reads, never by the atomic scripts.
func holdPattern(showID uint64) string { return fmt.Sprintf("hold:show:%d:seat:*", showID) }
