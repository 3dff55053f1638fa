package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/show-booking-engine/internal/queue"
)

// AMQPNotifier publishes events to the show.events queue on RabbitMQ.
// Each publish dials its own short-lived connection; this keeps the
// notifier stateless and robust against broker restarts at the cost of
// per-publish latency, which is acceptable for a best-effort channel.
type AMQPNotifier struct {
	URL string
}

// NewAMQPNotifier returns a notifier publishing to the broker at url.
func NewAMQPNotifier(url string) *AMQPNotifier {
	return &AMQPNotifier{URL: url}
}

// Publish sends one event. The function attempts to be robust and to
// never panic; any error is logged and returned so the caller can choose
// to ignore it. Messages are marked as persistent.
func (n *AMQPNotifier) Publish(ctx context.Context, showID uint64, eventType string, payload map[string]interface{}) error {
	conn, err := amqp.Dial(n.URL)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive
	// broker restarts.
	if _, err := ch.QueueDeclare(q.ShowEventsQueue, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	body, err := json.Marshal(q.ShowEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		ShowID:     showID,
		Payload:    payload,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.ShowEventsQueue, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
