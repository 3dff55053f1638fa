// Package queue defines message payloads exchanged over the message
// broker and the background consumer that records sales.
package queue

// ShowEventsQueue is the durable queue carrying every seat and booking
// event published by the engine.
const ShowEventsQueue = "show.events"

// ShowEvent is the envelope for all published events. Payload carries
// event-specific fields (reservation_id, seats, booking_id, ...) so
// downstream consumers can log, notify or aggregate without querying the
// primary database.
type ShowEvent struct {
	EventID    string                 `json:"event_id"`
	Type       string                 `json:"type"`
	ShowID     uint64                 `json:"show_id"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt string                 `json:"occurred_at"`
}
