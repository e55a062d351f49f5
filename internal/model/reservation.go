package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// ReservationStatuses lists every reservation status in display order.
var ReservationStatuses = []ReservationStatus{ReservationPending, ReservationConfirmed, ReservationCancelled}

var reservationTransitions = map[ReservationStatus]map[ReservationStatus]bool{
	ReservationPending:   {ReservationConfirmed: true, ReservationCancelled: true},
	ReservationConfirmed: {ReservationCancelled: true},
	ReservationCancelled: {},
}

// CanTransition reports whether a reservation may move from s to to.
func (s ReservationStatus) CanTransition(to ReservationStatus) bool {
	return reservationTransitions[s][to]
}

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// Active reports whether a reservation in state s holds seats.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Reservation records a user's claim on a number of seats of one event.
//
// Fields:
//  Seats            – number of seats claimed, 1 to the configured maximum.
//  TotalAmountCents – Seats × the event's unit price; recomputed, never set directly.
//  Code             – unique, immutable human-facing identifier (e.g. EVT-04217).
//  Note             – optional free text left by the client.
type Reservation struct {
	ID               uint64
	EventID          uint64
	UserID           uint64
	Seats            int
	TotalAmountCents int64
	Code             string
	Status           ReservationStatus
	Note             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
