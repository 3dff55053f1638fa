package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/show-booking-engine/internal/model"
)

// Tx is the durable-store surface available inside one transaction. The
// orchestrator sees only this interface so its failure paths can be
// exercised without a live database.
type Tx interface {
	// LockShow reads the show row under SELECT ... FOR UPDATE.
	LockShow(ctx context.Context, showID uint64) (*model.Show, error)
	// SoldSeats reports which of the seats already carry a ticket.
	SoldSeats(ctx context.Context, showID uint64, seatIDs []string) ([]string, error)
	// InsertBooking writes the booking row and fills in its ID.
	InsertBooking(ctx context.Context, b *model.Booking) error
	// InsertTickets writes the line items for a booking.
	InsertTickets(ctx context.Context, tickets []model.Ticket) error
	// DecrementCapacity takes n from the durable capacity counter.
	DecrementCapacity(ctx context.Context, showID uint64, n int) error
}

// Store bundles the repositories behind a transactional boundary.
type Store struct {
	db       *sql.DB
	shows    *ShowRepo
	bookings *BookingRepo
}

// NewStore returns a Store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		shows:    NewShowRepo(db),
		bookings: NewBookingRepo(db),
	}
}

// Shows exposes the show repository for non-transactional reads.
func (s *Store) Shows() *ShowRepo { return s.shows }

// Bookings exposes the booking repository for non-transactional reads.
func (s *Store) Bookings() *BookingRepo { return s.bookings }

// FindBookingByKey is the dedup lookup; see BookingRepo.FindByIdempotencyKey.
func (s *Store) FindBookingByKey(ctx context.Context, owner string, showID uint64, key string) (*model.Booking, []model.Ticket, error) {
	return s.bookings.FindByIdempotencyKey(ctx, owner, showID, key)
}

// Transact runs fn inside a single transaction. The transaction commits
// only when fn returns nil; any error (or panic) rolls everything back,
// so the work inside is all-or-nothing.
func (s *Store) Transact(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	if err := fn(&storeTx{tx: sqlTx, store: s}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// storeTx adapts a *sql.Tx to the Tx interface.
type storeTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *storeTx) LockShow(ctx context.Context, showID uint64) (*model.Show, error) {
	return t.store.shows.LockTx(ctx, t.tx, showID)
}

func (t *storeTx) SoldSeats(ctx context.Context, showID uint64, seatIDs []string) ([]string, error) {
	return t.store.bookings.SoldSeatsTx(ctx, t.tx, showID, seatIDs)
}

func (t *storeTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.store.bookings.CreateTx(ctx, t.tx, b)
}

func (t *storeTx) InsertTickets(ctx context.Context, tickets []model.Ticket) error {
	return t.store.bookings.CreateTicketsBulkTx(ctx, t.tx, tickets)
}

func (t *storeTx) DecrementCapacity(ctx context.Context, showID uint64, n int) error {
	return t.store.shows.DecrementCapacityTx(ctx, t.tx, showID, n)
}
