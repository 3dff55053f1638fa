package model

import "time"

// Show represents a sellable performance with a finite seat capacity.
// Capacity is the durable remaining-capacity counter: it only decreases
// when a booking is committed, and it is the value the shared-store
// counter is primed from.
//
// Fields:
//  ID               – primary key identifier.
//  Name             – title displayed to customers.
//  Capacity         – remaining unsold capacity (never negative).
//  TicketPriceCents – price per seat in cents.
//  Status           – current state of the show (SCHEDULED, CANCELLED,
//                     FINISHED).
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Show struct {
	ID               uint64    // shows.id
	Name             string    // shows.name
	Capacity         int64     // shows.capacity
	TicketPriceCents uint32    // shows.ticket_price_cents
	Status           string    // shows.status
	CreatedAt        time.Time // shows.created_at
	UpdatedAt        time.Time // shows.updated_at
}
