package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/show-booking-engine/internal/model"
)

// CapacityLedger owns the per-show remaining-capacity counter and the
// count-based reservation flow against it. A successful Reserve is
// immediately visible to every other caller; decrements are strictly
// serialized per show by the script-held lock.
type CapacityLedger struct {
	rdb *redis.Client

	// LockTTL bounds how long the show lock can outlive a dead client.
	// ReservationTTL bounds how long an unresolved reservation record
	// lingers; its expiry does NOT restore capacity (see Release).
	LockTTL        time.Duration
	ReservationTTL time.Duration
}

// NewCapacityLedger returns a ledger bound to the provided Redis client
// with the default TTLs.
func NewCapacityLedger(rdb *redis.Client) *CapacityLedger {
	return &CapacityLedger{
		rdb:            rdb,
		LockTTL:        DefaultLockTTL,
		ReservationTTL: DefaultReservationTTL,
	}
}

// ReserveResult reports a granted count-based reservation.
type ReserveResult struct {
	ReservationID int64
	Remaining     int64
}

// Reserve atomically takes n seats from the show's capacity counter and
// mints a count-mode reservation record. The show lock is acquired
// fail-fast: when another reserver is mid-update the call returns
// ErrLockAcquisitionFailed immediately instead of waiting, and the
// caller should retry. ErrInsufficientCapacity means the remaining
// counter is below n.
//
// The granted reservation is in limbo until the caller resolves it with
// Confirm or Release; TTL expiry of the record alone leaks the capacity
// permanently.
func (l *CapacityLedger) Reserve(ctx context.Context, showID uint64, n int, owner string) (*ReserveResult, error) {
	keys := []string{capacityKey(showID), lockKey(showID), counterKey}
	args := []interface{}{
		n,
		l.LockTTL.Milliseconds(),
		owner,
		strconv.FormatUint(showID, 10),
		int64(l.ReservationTTL / time.Second),
	}
	vals, err := reserveScript.Run(ctx, l.rdb, keys, args...).Result()
	if err != nil {
		return nil, translate(err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return nil, ErrStoreUnavailable
	}
	return &ReserveResult{
		ReservationID: asInt64(arr[0]),
		Remaining:     asInt64(arr[1]),
	}, nil
}

// Release restores n seats to the show's capacity and deletes the
// reservation record. It is idempotent: when the record no longer
// exists (already confirmed, released or expired) the call succeeds
// without touching the counter, so capacity is never restored twice.
func (l *CapacityLedger) Release(ctx context.Context, showID uint64, reservationID int64, n int) error {
	keys := []string{capacityKey(showID), reservationKey(reservationID)}
	return translate(releaseCountScript.Run(ctx, l.rdb, keys, n).Err())
}

// Confirm deletes the ephemeral reservation record and writes a
// confirmed booking hash in its place. The capacity counter is left
// alone; it already reflects the sale. Returns ErrReservationNotFound
// when the record is unknown or expired.
func (l *CapacityLedger) Confirm(ctx context.Context, reservationID int64, owner string, showID uint64, n int) error {
	keys := []string{reservationKey(reservationID), bookingKey(reservationID)}
	args := []interface{}{owner, strconv.FormatUint(showID, 10), n}
	return translate(confirmCountScript.Run(ctx, l.rdb, keys, args...).Err())
}

// ShowCapacity reads the cached remaining capacity. The second return
// value distinguishes "counter not primed" from a real zero.
func (l *CapacityLedger) ShowCapacity(ctx context.Context, showID uint64) (int64, bool, error) {
	val, err := l.rdb.Get(ctx, capacityKey(showID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, translate(err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, translate(err)
	}
	return n, true, nil
}

// SetShowCapacity overwrites the cached counter from durable state.
// Called after every committed booking, where the transaction just
// computed the authoritative remaining value.
func (l *CapacityLedger) SetShowCapacity(ctx context.Context, showID uint64, capacity int64) error {
	return translate(l.rdb.Set(ctx, capacityKey(showID), strconv.FormatInt(capacity, 10), 0).Err())
}

// PrimeShowCapacity writes the counter only when it is absent. First
// touch of a show races with concurrent reserves; SET NX means a stale
// durable read can never resurrect capacity a reserve already took.
// Reports whether this call did the priming.
func (l *CapacityLedger) PrimeShowCapacity(ctx context.Context, showID uint64, capacity int64) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, capacityKey(showID), strconv.FormatInt(capacity, 10), 0).Result()
	if err != nil {
		return false, translate(err)
	}
	return ok, nil
}

// ActiveReservations is an admin snapshot of the live count-based
// reservations for a show. It scans the keyspace and is not part of any
// correctness decision.
func (l *CapacityLedger) ActiveReservations(ctx context.Context, showID uint64) ([]model.Reservation, error) {
	want := strconv.FormatUint(showID, 10)
	var out []model.Reservation
	iter := l.rdb.Scan(ctx, 0, "reservation:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := l.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, translate(err)
		}
		if data["show_id"] != want || data["mode"] != string(model.ModeCount) {
			continue
		}
		res := parseReservation(key, data)
		if res != nil {
			out = append(out, *res)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// parseReservation converts a reservation hash into a model.Reservation.
// Returns nil when the key does not carry a parseable id.
func parseReservation(key string, data map[string]string) *model.Reservation {
	id, err := strconv.ParseInt(key[len("reservation:"):], 10, 64)
	if err != nil {
		return nil
	}
	showID, _ := strconv.ParseUint(data["show_id"], 10, 64)
	count, _ := strconv.Atoi(data["count"])
	created, _ := strconv.ParseInt(data["created_at"], 10, 64)
	res := &model.Reservation{
		ID:        id,
		Owner:     data["owner"],
		ShowID:    showID,
		Mode:      model.ReservationMode(data["mode"]),
		Count:     count,
		CreatedAt: created,
	}
	if csv := data["seats"]; csv != "" {
		res.Seats = splitSeats(csv)
		if res.Mode == model.ModeSeats {
			res.Count = len(res.Seats)
		}
	}
	return res
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
