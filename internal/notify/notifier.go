// Package notify delivers best-effort seat and booking events to the
// outside world. The core never blocks on or retries a publish; a failed
// notification is logged and dropped, and must never undo a sale.
package notify

import "context"

// Event types published by the engine.
const (
	EventSeatHeld      = "seat_held"
	EventSeatReleased  = "seat_released"
	EventSeatConfirmed = "seat_confirmed"
	EventShowSold      = "show_sold"
)

// Notifier publishes a fire-and-forget event about a show. The error
// return exists for logging only; callers ignore it for control flow.
type Notifier interface {
	Publish(ctx context.Context, showID uint64, eventType string, payload map[string]interface{}) error
}

// Nop is the default Notifier when no broker is configured. Selected
// explicitly at construction time, never substituted silently.
type Nop struct{}

func (Nop) Publish(ctx context.Context, showID uint64, eventType string, payload map[string]interface{}) error {
	return nil
}
