package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/show-booking-engine/internal/model"
)

// SeatHoldTable owns the per-(show, seat) exclusive hold entries. At
// most one live hold exists per seat at any time; exclusivity comes from
// the create-if-absent primitive applied per seat key inside the batch
// script, not from any Go-side bookkeeping.
type SeatHoldTable struct {
	rdb *redis.Client

	// HoldTTL is the default lifetime of a hold batch. Expiry simply
	// frees the seat keys; there is no capacity accounting to undo.
	HoldTTL time.Duration
}

// NewSeatHoldTable returns a hold table bound to the provided Redis
// client with the default TTL.
func NewSeatHoldTable(rdb *redis.Client) *SeatHoldTable {
	return &SeatHoldTable{rdb: rdb, HoldTTL: DefaultHoldTTL}
}

// HoldSeats grants an exclusive hold on every seat in seatIDs, tagged
// with a freshly minted reservation id, or grants nothing at all. When
// any seat is already held the batch fails with a *SeatHeldError naming
// the conflicting seat, and holds acquired earlier in the same call have
// been rolled back. ttl <= 0 uses the table default.
func (t *SeatHoldTable) HoldSeats(ctx context.Context, owner string, showID uint64, seatIDs []string, ttl time.Duration) (*model.Reservation, error) {
	if ttl <= 0 {
		ttl = t.HoldTTL
	}
	args := make([]interface{}, 0, len(seatIDs)+3)
	args = append(args, owner, strconv.FormatUint(showID, 10), int64(ttl/time.Second))
	for _, s := range seatIDs {
		args = append(args, s)
	}
	vals, err := holdSeatsScript.Run(ctx, t.rdb, []string{counterKey}, args...).Result()
	if err != nil {
		return nil, translate(err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, ErrStoreUnavailable
	}
	id := asInt64(arr[0])
	csv, _ := arr[1].(string)
	return &model.Reservation{
		ID:     id,
		Owner:  owner,
		ShowID: showID,
		Mode:   model.ModeSeats,
		Seats:  splitSeats(csv),
		Count:  len(splitSeats(csv)),
	}, nil
}

// ConfirmHold deletes every per-seat hold belonging to the reservation
// and the reservation record itself; the seats are sold from here on and
// tracked by the durable booking instead. Fails with
// ErrReservationNotFound when the id is unknown or already resolved, and
// ErrNotAuthorized when the reservation belongs to a different owner.
func (t *SeatHoldTable) ConfirmHold(ctx context.Context, reservationID int64, owner string) error {
	keys := []string{reservationKey(reservationID)}
	return translate(confirmHoldScript.Run(ctx, t.rdb, keys, owner).Err())
}

// ReleaseHold deletes all holds belonging to the reservation and the
// reservation record. Idempotent: releasing an already-resolved or
// unknown reservation succeeds as a no-op.
func (t *SeatHoldTable) ReleaseHold(ctx context.Context, reservationID int64) error {
	keys := []string{reservationKey(reservationID)}
	return translate(releaseHoldScript.Run(ctx, t.rdb, keys).Err())
}

// Reservation reads a reservation record for validation. Returns
// ErrReservationNotFound when the record is gone (expired or resolved).
func (t *SeatHoldTable) Reservation(ctx context.Context, reservationID int64) (*model.Reservation, error) {
	key := reservationKey(reservationID)
	data, err := t.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, translate(err)
	}
	if len(data) == 0 {
		return nil, ErrReservationNotFound
	}
	res := parseReservation(key, data)
	if res == nil {
		return nil, ErrReservationNotFound
	}
	return res, nil
}

// ActiveHolds is a snapshot of the held-but-unconfirmed seats for a
// show, for display only. It scans the hold keyspace; a hold observed
// here may expire the moment after, so nothing downstream may treat the
// result as authoritative.
func (t *SeatHoldTable) ActiveHolds(ctx context.Context, showID uint64) ([]model.Hold, error) {
	prefix := holdKey(showID, "")
	holds := make([]model.Hold, 0)
	iter := t.rdb.Scan(ctx, 0, holdPattern(showID), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := t.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, translate(err)
		}
		resID, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		holds = append(holds, model.Hold{
			SeatID:        strings.TrimPrefix(key, prefix),
			ReservationID: resID,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, translate(err)
	}
	return holds, nil
}

func splitSeats(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}
