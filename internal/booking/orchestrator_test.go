package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/model"
	"github.com/iliyamo/show-booking-engine/internal/monitoring"
	"github.com/iliyamo/show-booking-engine/internal/notify"
	"github.com/iliyamo/show-booking-engine/internal/payment"
	"github.com/iliyamo/show-booking-engine/internal/repository"
)

// fakeTx records the durable writes the orchestrator performs inside the
// transaction so tests can assert on them after the fact.
type fakeTx struct {
	show    *model.Show
	showErr error
	sold    []string

	insertedBooking *model.Booking
	insertedTickets []model.Ticket
	decremented     int
}

func (t *fakeTx) LockShow(ctx context.Context, showID uint64) (*model.Show, error) {
	if t.showErr != nil {
		return nil, t.showErr
	}
	return t.show, nil
}

func (t *fakeTx) SoldSeats(ctx context.Context, showID uint64, seatIDs []string) ([]string, error) {
	return t.sold, nil
}

func (t *fakeTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	b.ID = 101
	t.insertedBooking = b
	return nil
}

func (t *fakeTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	t.insertedTickets = tickets
	return nil
}

func (t *fakeTx) DecrementCapacity(ctx context.Context, showID uint64, n int) error {
	t.decremented += n
	return nil
}

// fakeStore runs Transact against a single fakeTx and serves the dedup
// lookup from a canned booking.
type fakeStore struct {
	tx              *fakeTx
	existing        *model.Booking
	existingTickets []model.Ticket
}

func (s *fakeStore) FindBookingByKey(ctx context.Context, owner string, showID uint64, key string) (*model.Booking, []model.Ticket, error) {
	if s.existing != nil {
		return s.existing, s.existingTickets, nil
	}
	return nil, nil, repository.ErrBookingNotFound
}

func (s *fakeStore) Transact(ctx context.Context, fn func(tx repository.Tx) error) error {
	return fn(s.tx)
}

type fakeGateway struct {
	result *payment.ChargeResult
	err    error
	calls  int
}

func (g *fakeGateway) Charge(ctx context.Context, amountCents int64, method payment.Method, idempotencyKey string) (*payment.ChargeResult, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func newTestOrchestrator(store *fakeStore, gw payment.Gateway) (*Orchestrator, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	orc := NewOrchestrator(store, cache.NewCapacityLedger(db), cache.NewSeatHoldTable(db), gw, notify.Nop{}, monitoring.New())
	return orc, mock
}

func seatShow() *model.Show {
	return &model.Show{ID: 42, Name: "Evening Show", Capacity: 50, TicketPriceCents: 1500}
}

func TestOrchestrator_Book_SeatReservation_Succeeds(t *testing.T) {
	tx := &fakeTx{show: seatShow()}
	store := &fakeStore{tx: tx}
	gw := &fakeGateway{result: &payment.ChargeResult{
		Status: payment.StatusSuccess, TransactionID: "sim-abc", Reason: "default_success",
	}}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "seats",
		"seats": "A1,A2", "created_at": "1700000000",
	})
	// Post-commit: refresh the cached counter, then confirm the hold.
	mock.ExpectSet("show:42:capacity", "48", 0).SetVal("OK")
	mock.ExpectEvalSha(cache.ConfirmHoldScriptHash(), []string{"reservation:9"}, "alice").SetVal("OK")

	res, err := orc.Book(context.Background(), Request{
		Owner: "alice", ShowID: 42, ReservationID: 9,
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Booking)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, int64(3000), res.Booking.TotalCents)
	assert.Equal(t, "sim-abc", *res.Booking.PaymentRef)
	assert.Equal(t, "key-1", *res.Booking.IdempotencyKey)
	require.Len(t, res.Tickets, 2)
	assert.Equal(t, "A1", res.Tickets[0].SeatID)
	assert.Equal(t, uint32(1500), res.Tickets[0].PriceCents)
	assert.Equal(t, 2, tx.decremented)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_PaymentDeclined_ReleasesReservation(t *testing.T) {
	tx := &fakeTx{show: seatShow()}
	store := &fakeStore{tx: tx}
	gw := &fakeGateway{result: &payment.ChargeResult{
		Status: payment.StatusFailure, Reason: "odd_card_failure",
	}}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	// Fresh count-mode reservation taken as part of the call.
	mock.ExpectEvalSha(cache.ReserveScriptHash(),
		[]string{"show:42:capacity", "lock:show:42", "reservation_counter"},
		2, int64(10000), "alice", "42", int64(300),
	).SetVal([]interface{}{int64(7), int64(48)})
	// The declined charge rolls back the transaction and hands the two
	// seats back to the counter.
	mock.ExpectEvalSha(cache.ReleaseCountScriptHash(),
		[]string{"show:42:capacity", "reservation:7"},
		2,
	).SetVal("OK")

	_, err := orc.Book(context.Background(), Request{
		Owner: "alice", ShowID: 42, Count: 2,
		Method: payment.Method{CardNumber: "4241"},
	})
	var payErr *PaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Equal(t, "odd_card_failure", payErr.Reason)
	assert.Nil(t, tx.insertedBooking)
	assert.Zero(t, tx.decremented)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_ReplaysIdempotencyKey(t *testing.T) {
	key := "key-replay"
	existing := &model.Booking{ID: 55, Owner: "alice", ShowID: 42, Status: model.BookingConfirmed, IdempotencyKey: &key}
	store := &fakeStore{tx: &fakeTx{show: seatShow()}, existing: existing}
	gw := &fakeGateway{}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	res, err := orc.Book(context.Background(), Request{
		Owner: "alice", ShowID: 42, ReservationID: 9, IdempotencyKey: key,
	})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, uint64(55), res.Booking.ID)
	// No charge, no reservation traffic.
	assert.Zero(t, gw.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_ForeignReservation_NotReleased(t *testing.T) {
	store := &fakeStore{tx: &fakeTx{show: seatShow()}}
	orc, mock := newTestOrchestrator(store, &fakeGateway{})
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "bob", "show_id": "42", "mode": "seats",
		"seats": "A1", "created_at": "1700000000",
	})

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	assert.ErrorIs(t, err, cache.ErrNotAuthorized)
	// Bob's reservation must survive Alice's failed attempt: no release
	// expectation was registered, so any would fail the mock.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_ReservationForOtherShow(t *testing.T) {
	store := &fakeStore{tx: &fakeTx{show: seatShow()}}
	orc, mock := newTestOrchestrator(store, &fakeGateway{})
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "43", "mode": "count",
		"count": "2", "created_at": "1700000000",
	})

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	assert.ErrorIs(t, err, ErrReservationMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_DurableCapacityRecheck(t *testing.T) {
	// The cache granted the reservation, but durable truth says only one
	// seat is left. The booking must fail and the reservation must be
	// released.
	tx := &fakeTx{show: &model.Show{ID: 42, Capacity: 1, TicketPriceCents: 1500}}
	store := &fakeStore{tx: tx}
	orc, mock := newTestOrchestrator(store, &fakeGateway{})
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "count",
		"count": "2", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ReleaseCountScriptHash(),
		[]string{"show:42:capacity", "reservation:9"},
		2,
	).SetVal("OK")

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	assert.ErrorIs(t, err, repository.ErrCapacityExhausted)
	assert.Nil(t, tx.insertedBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_SeatsAlreadySold(t *testing.T) {
	tx := &fakeTx{show: seatShow(), sold: []string{"A1"}}
	store := &fakeStore{tx: tx}
	gw := &fakeGateway{}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "seats",
		"seats": "A1,A2", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ReleaseHoldScriptHash(), []string{"reservation:9"}).SetVal("OK")

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	var sold *SeatsSoldError
	require.ErrorAs(t, err, &sold)
	assert.Equal(t, []string{"A1"}, sold.Seats)
	// The charge must never run when the seats are already gone.
	assert.Zero(t, gw.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_BookDirect_Succeeds(t *testing.T) {
	tx := &fakeTx{show: seatShow()}
	store := &fakeStore{tx: tx}
	gw := &fakeGateway{result: &payment.ChargeResult{
		Status: payment.StatusSuccess, TransactionID: "sim-direct", Reason: "default_success",
	}}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	res, err := orc.BookDirect(context.Background(), Request{Owner: "alice", ShowID: 42, Count: 3})
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, res.Booking.Status)
	assert.Equal(t, int64(4500), res.Booking.TotalCents)
	assert.Equal(t, 3, tx.decremented)
	// Database-only: Redis is never touched.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_BookDirect_PaymentDeclined(t *testing.T) {
	tx := &fakeTx{show: seatShow()}
	store := &fakeStore{tx: tx}
	gw := &fakeGateway{result: &payment.ChargeResult{Status: payment.StatusFailure, Reason: "forced_failure"}}
	orc, mock := newTestOrchestrator(store, gw)
	defer mock.ClearExpect()

	_, err := orc.BookDirect(context.Background(), Request{Owner: "alice", ShowID: 42, Count: 1})
	var payErr *PaymentError
	require.ErrorAs(t, err, &payErr)
	assert.Nil(t, tx.insertedBooking)
	assert.Zero(t, tx.decremented)
}

func TestOrchestrator_Book_ShowNotFound(t *testing.T) {
	tx := &fakeTx{showErr: repository.ErrShowNotFound}
	store := &fakeStore{tx: tx}
	orc, mock := newTestOrchestrator(store, &fakeGateway{})
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "count",
		"count": "1", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ReleaseCountScriptHash(),
		[]string{"show:42:capacity", "reservation:9"},
		1,
	).SetVal("OK")

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	assert.ErrorIs(t, err, repository.ErrShowNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrchestrator_Book_WrapsUnknownStoreErrors(t *testing.T) {
	tx := &fakeTx{showErr: errors.New("driver: bad connection")}
	store := &fakeStore{tx: tx}
	orc, mock := newTestOrchestrator(store, &fakeGateway{})
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "count",
		"count": "1", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ReleaseCountScriptHash(),
		[]string{"show:42:capacity", "reservation:9"},
		1,
	).SetVal("OK")

	_, err := orc.Book(context.Background(), Request{Owner: "alice", ShowID: 42, ReservationID: 9})
	assert.ErrorIs(t, err, ErrDurableStore)
}
