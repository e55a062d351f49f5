package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueName is the durable queue every ReservationMessage is routed to.
const QueueName = "reservation.events"

// Publisher delivers domain messages. Implementations must not panic;
// callers treat failures as best effort.
type Publisher interface {
	Publish(ctx context.Context, msg ReservationMessage) error
}

// NopPublisher drops every message. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ReservationMessage) error { return nil }

// AMQPPublisher publishes messages to RabbitMQ. It dials per publish so a
// broker outage never leaves a stale connection behind; the dial itself
// is bounded by DialTimeout.
type AMQPPublisher struct {
	URL         string
	Queue       string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// NewAMQPPublisher returns a publisher for url using QueueName.
func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{URL: url, Queue: QueueName, DialTimeout: 2 * time.Second, Logger: logger}
}

// Publish sends msg to the queue as a persistent JSON message. Any error is
// logged and returned so the caller can choose to ignore it.
func (p *AMQPPublisher) Publish(ctx context.Context, msg ReservationMessage) error {
	log := p.Logger.With("component", "rabbitmq", "type", msg.Type)
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
	if err != nil {
		log.Warn("dial failed", "err", err)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", "err", err)
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		log.Warn("queue declare failed", "err", err)
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         msg.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		log.Warn("publish failed", "err", err)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
