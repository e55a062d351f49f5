package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer appends one line per ReservationMessage to a log file.
type AuditConsumer struct {
	URL    string
	Queue  string
	Path   string
	Logger *slog.Logger
}

// NewAuditConsumer returns a consumer reading QueueName and writing to path.
func NewAuditConsumer(url, path string, logger *slog.Logger) *AuditConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditConsumer{URL: url, Queue: QueueName, Path: path, Logger: logger.With("component", "audit-consumer")}
}

// Run connects to RabbitMQ, declares the queue (durable), and consumes
// until ctx is cancelled. Broker failures trigger a reconnect with
// exponential backoff capped at 30s; a message that cannot be handled is
// rejected without requeue so it cannot loop.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("failed to dial broker", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("consume loop ended; reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.Logger.Error("handle message failed", "err", err, "message_id", d.MessageId)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends its audit line.
func (c *AuditConsumer) Handle(body []byte) error {
	var msg ReservationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.Type == "" {
		return errors.New("message without type")
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatAuditLine(msg)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders msg as a single human-friendly line.
func FormatAuditLine(msg ReservationMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | event_id=%d | event=%q | status=%s",
		msg.OccurredAt.UTC().Format(time.RFC3339), msg.Type, msg.EventID, msg.EventTitle, msg.Status)
	if msg.ReservationID != 0 {
		fmt.Fprintf(&b, " | reservation_id=%d | code=%s | user_id=%d | seats=%d | total=%d cents",
			msg.ReservationID, msg.Code, msg.UserID, msg.Seats, msg.TotalAmountCents)
	}
	if msg.ActorID != 0 {
		fmt.Fprintf(&b, " | actor_id=%d", msg.ActorID)
	}
	if len(msg.CancelledIDs) > 0 {
		fmt.Fprintf(&b, " | cancelled=%d", len(msg.CancelledIDs))
	}
	b.WriteByte('\n')
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
