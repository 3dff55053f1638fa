package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/show-booking-engine/internal/model"
)

// BookingRepo provides data access to bookings and their tickets. A
// booking groups the tickets sold in one purchase; the unique index on
// (owner, show_id, idempotency_key) backs the idempotent-replay
// guarantee, and the unique index on (show_id, seat_id) in tickets makes
// double-selling a seat impossible at the schema level.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

const bookingColumns = `id, owner, show_id, reservation_id, idempotency_key, status, payment_ref, total_cents, created_at, confirmed_at`

func scanBooking(row *sql.Row) (*model.Booking, error) {
	var b model.Booking
	var key, ref sql.NullString
	var confirmed sql.NullTime
	err := row.Scan(&b.ID, &b.Owner, &b.ShowID, &b.ReservationID, &key, &b.Status, &ref, &b.TotalCents, &b.CreatedAt, &confirmed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if key.Valid {
		b.IdempotencyKey = &key.String
	}
	if ref.Valid {
		b.PaymentRef = &ref.String
	}
	if confirmed.Valid {
		t := confirmed.Time
		b.ConfirmedAt = &t
	}
	return &b, nil
}

// FindByIdempotencyKey returns the booking previously created for
// (owner, show, key) together with its tickets, or ErrBookingNotFound.
// This is the dedup short-circuit checked before any new reservation is
// attempted.
func (r *BookingRepo) FindByIdempotencyKey(ctx context.Context, owner string, showID uint64, key string) (*model.Booking, []model.Ticket, error) {
	const q = `SELECT ` + bookingColumns + ` FROM bookings WHERE owner = ? AND show_id = ? AND idempotency_key = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, owner, showID, key))
	if err != nil {
		return nil, nil, err
	}
	tickets, err := r.TicketsByBooking(ctx, b.ID)
	if err != nil {
		return nil, nil, err
	}
	return b, tickets, nil
}

// TicketsByBooking lists the tickets sold under a booking, ordered by
// seat id for deterministic output.
func (r *BookingRepo) TicketsByBooking(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
	const q = `SELECT id, booking_id, show_id, seat_id, price_cents, booked_at
	           FROM tickets WHERE booking_id = ? ORDER BY seat_id`
	rows, err := r.db.QueryContext(ctx, q, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.ShowID, &t.SeatID, &t.PriceCents, &t.BookedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// CreateTx inserts a booking within the provided transaction and
// populates the generated ID. A duplicate (owner, show, key) insert is
// reported as ErrDuplicateBooking so the caller can fall back to the
// recorded outcome.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (owner, show_id, reservation_id, idempotency_key, status, payment_ref, total_cents, confirmed_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.Owner, b.ShowID, b.ReservationID, b.IdempotencyKey, b.Status, b.PaymentRef, b.TotalCents, b.ConfirmedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateBooking
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// CreateTicketsBulkTx inserts all tickets in a single statement within
// the provided transaction. Passing an empty slice has no effect and
// returns nil.
func (r *BookingRepo) CreateTicketsBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (booking_id, show_id, seat_id, price_cents) VALUES `
	args := make([]interface{}, 0, len(tickets)*4)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, t.BookingID, t.ShowID, t.SeatID, t.PriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// SoldSeatsTx returns which of the given seats already have a ticket for
// the show, regardless of whether they are currently held anywhere. Runs
// inside the row-lock transaction so the answer cannot go stale before
// commit.
func (r *BookingRepo) SoldSeatsTx(ctx context.Context, tx *sql.Tx, showID uint64, seatIDs []string) ([]string, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(seatIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT seat_id FROM tickets WHERE show_id = ? AND seat_id IN (` + placeholders + `)`
	args := make([]interface{}, 0, len(seatIDs)+1)
	args = append(args, showID)
	for _, s := range seatIDs {
		args = append(args, s)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sold []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		sold = append(sold, s)
	}
	return sold, rows.Err()
}

// isDuplicateKey reports whether err is MySQL error 1062
// (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
