// Package queue defines message payloads exchanged over the message broker
// and the publisher and consumer that move them.
package queue

import "time"

// Message types published after a reservation or event changes state.
const (
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
	EventPublished       = "event.published"
	EventCancelled       = "event.cancelled"
)

// ReservationMessage carries enough information for downstream consumers
// to log, notify, or trigger analytics without querying the primary
// database. Reservation fields are zero for event-level messages.
type ReservationMessage struct {
	Type             string    `json:"type"`
	ReservationID    uint64    `json:"reservation_id,omitempty"`
	Code             string    `json:"code,omitempty"`
	UserID           uint64    `json:"user_id,omitempty"`
	EventID          uint64    `json:"event_id"`
	EventTitle       string    `json:"event_title"`
	StartsAt         time.Time `json:"starts_at"`
	Seats            int       `json:"seats,omitempty"`
	TotalAmountCents int64     `json:"total_amount_cents,omitempty"`
	Status           string    `json:"status"`
	ActorID          uint64    `json:"actor_id,omitempty"`
	CancelledIDs     []uint64  `json:"cancelled_reservation_ids,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
