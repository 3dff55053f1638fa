package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/show-booking-engine/internal/model"
)

// ShowRepo manages persistence for shows. The capacity column on the
// shows row is the durable remaining-capacity counter; every mutation of
// it goes through a transaction holding the row lock taken by LockTx.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo with the given DB handle.
func NewShowRepo(db *sql.DB) *ShowRepo {
	return &ShowRepo{db: db}
}

// DB exposes the underlying sql.DB. It allows callers to begin
// transactions spanning multiple repositories.
func (r *ShowRepo) DB() *sql.DB { return r.db }

const showColumns = `id, name, capacity, ticket_price_cents, status, created_at, updated_at`

func scanShow(row *sql.Row) (*model.Show, error) {
	var s model.Show
	err := row.Scan(&s.ID, &s.Name, &s.Capacity, &s.TicketPriceCents, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	return &s, nil
}

// GetByID retrieves a show by its ID. It returns ErrShowNotFound if
// there is no matching row.
func (r *ShowRepo) GetByID(ctx context.Context, id uint64) (*model.Show, error) {
	const q = `SELECT ` + showColumns + ` FROM shows WHERE id = ?`
	return scanShow(r.db.QueryRowContext(ctx, q, id))
}

// LockTx reads the show row under an exclusive row lock within the
// provided transaction. Two concurrent purchase attempts for the last
// unit serialize here; exactly one of them observes the remaining
// capacity. The caller must commit or roll back the transaction.
func (r *ShowRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Show, error) {
	const q = `SELECT ` + showColumns + ` FROM shows WHERE id = ? FOR UPDATE`
	return scanShow(tx.QueryRowContext(ctx, q, id))
}

// DecrementCapacityTx takes n seats from the durable capacity counter
// inside the provided transaction. The capacity >= n guard keeps the
// counter non-negative even if a caller races past the cache; a guarded
// miss returns ErrCapacityExhausted.
func (r *ShowRepo) DecrementCapacityTx(ctx context.Context, tx *sql.Tx, id uint64, n int) error {
	const q = `UPDATE shows SET capacity = capacity - ? WHERE id = ? AND capacity >= ?`
	res, err := tx.ExecContext(ctx, q, n, id, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return ErrCapacityExhausted
	}
	return nil
}

// Create inserts a new show and assigns the generated ID back to the
// struct. Used by seeding and tests; day-to-day admin CRUD lives outside
// this engine.
func (r *ShowRepo) Create(ctx context.Context, s *model.Show) error {
	const q = `INSERT INTO shows (name, capacity, ticket_price_cents) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, s.Name, s.Capacity, s.TicketPriceCents)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	const sel = `SELECT ` + showColumns + ` FROM shows WHERE id = ?`
	got, err := scanShow(r.db.QueryRowContext(ctx, sel, s.ID))
	if err != nil {
		return err
	}
	*s = *got
	return nil
}
