package model

import "time"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventCancelled EventStatus = "CANCELLED"
	EventFinished  EventStatus = "FINISHED"
)

// EventStatuses lists every event status in display order.
var EventStatuses = []EventStatus{EventDraft, EventPublished, EventCancelled, EventFinished}

var eventTransitions = map[EventStatus]map[EventStatus]bool{
	EventDraft:     {EventPublished: true, EventCancelled: true},
	EventPublished: {EventCancelled: true, EventFinished: true},
	EventCancelled: {},
	EventFinished:  {},
}

// CanTransition reports whether an event may move from s to to.
func (s EventStatus) CanTransition(to EventStatus) bool {
	return eventTransitions[s][to]
}

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	_, ok := eventTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s EventStatus) Terminal() bool {
	return s.Valid() && len(eventTransitions[s]) == 0
}

// Editable reports whether an event in state s may still have its fields changed.
func (s EventStatus) Editable() bool {
	return s == EventDraft || s == EventPublished
}

// Category classifies an event.
type Category string

const (
	CategoryConcert    Category = "CONCERT"
	CategoryTheatre    Category = "THEATRE"
	CategoryConference Category = "CONFERENCE"
	CategorySport      Category = "SPORT"
	CategoryOther      Category = "OTHER"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryConcert, CategoryTheatre, CategoryConference, CategorySport, CategoryOther}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Event mirrors the `events` table. OrganizerID is the owning user;
// reservations point back at the event through Reservation.EventID.
//
// Fields:
//  Capacity       – maximum number of seats reservable at once (≥ 1).
//  UnitPriceCents – price of one seat in cents (≥ 0).
//  Status         – lifecycle state, changed only through EventService.
type Event struct {
	ID             uint64
	Title          string
	Description    string
	Category       Category
	StartsAt       time.Time
	EndsAt         time.Time
	Venue          string
	City           string
	Capacity       int
	UnitPriceCents int64
	ImageURL       string
	OrganizerID    uint64
	Status         EventStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsBookable reports whether seats can be reserved for e at now.
func (e *Event) IsBookable(now time.Time) bool {
	return e.Status == EventPublished && now.Before(e.EndsAt)
}

// MissingForPublish returns the names of the fields that must be filled
// before e can be published. An empty result means e is complete.
func (e *Event) MissingForPublish() []string {
	var missing []string
	if e.Title == "" {
		missing = append(missing, "title")
	}
	if !e.Category.Valid() {
		missing = append(missing, "category")
	}
	if e.StartsAt.IsZero() {
		missing = append(missing, "starts_at")
	}
	if e.EndsAt.IsZero() {
		missing = append(missing, "ends_at")
	}
	if e.Venue == "" {
		missing = append(missing, "venue")
	}
	if e.City == "" {
		missing = append(missing, "city")
	}
	if e.Capacity < 1 {
		missing = append(missing, "capacity")
	}
	if e.UnitPriceCents < 0 {
		missing = append(missing, "unit_price_cents")
	}
	return missing
}
