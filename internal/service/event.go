package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/event-reservation/internal/capacity"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
)

// EventService drives the event lifecycle: DRAFT, PUBLISHED, then
// CANCELLED or FINISHED.
type EventService struct {
	Deps
}

// NewEventService panics when a required dependency is missing.
func NewEventService(d Deps) *EventService {
	return &EventService{Deps: d.withDefaults("events")}
}

// EventInput holds the fields of a new event. Venue, City and Category may
// stay empty while the event is a draft; Publish requires them.
type EventInput struct {
	Title          string
	Description    string
	Category       model.Category
	StartsAt       time.Time
	EndsAt         time.Time
	Venue          string
	City           string
	Capacity       int
	UnitPriceCents int64
	ImageURL       string
}

// EventPatch lists the fields to change; nil fields are left alone.
type EventPatch struct {
	Title          *string
	Description    *string
	Category       *model.Category
	StartsAt       *time.Time
	EndsAt         *time.Time
	Venue          *string
	City           *string
	Capacity       *int
	UnitPriceCents *int64
	ImageURL       *string
}

// EventView is an event with its current seat usage.
type EventView struct {
	model.Event
	Usage capacity.Usage
}

func viewOf(row repository.EventRow) EventView {
	return EventView{Event: row.Event, Usage: capacity.FromReserved(row.Event.Capacity, row.Reserved)}
}

func viewsOf(rows []repository.EventRow) []EventView {
	out := make([]EventView, 0, len(rows))
	for _, r := range rows {
		out = append(out, viewOf(r))
	}
	return out
}

// Create stores a new DRAFT event organized by actorID.
func (s *EventService) Create(ctx context.Context, actorID uint64, in EventInput) (*model.Event, error) {
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, lookupErr(err, "User %d not found.", actorID)
	}
	if !actor.Role.CanOrganize() {
		return nil, forbiddenf("Only organizers can create events.")
	}
	now := s.Clock.Now()
	e := &model.Event{
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		Category:       in.Category,
		StartsAt:       in.StartsAt.UTC(),
		EndsAt:         in.EndsAt.UTC(),
		Venue:          strings.TrimSpace(in.Venue),
		City:           strings.TrimSpace(in.City),
		Capacity:       in.Capacity,
		UnitPriceCents: in.UnitPriceCents,
		ImageURL:       strings.TrimSpace(in.ImageURL),
		OrganizerID:    actor.ID,
		Status:         model.EventDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := validateEvent(e, now, true); err != nil {
		return nil, err
	}
	if err := s.Events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.Logger.Info("event created", "event_id", e.ID, "organizer_id", e.OrganizerID)
	return e, nil
}

// validateEvent checks the field invariants of e. requireFutureStart is
// set when the start time is new and therefore must lie ahead of now.
func validateEvent(e *model.Event, now time.Time, requireFutureStart bool) error {
	if e.Title == "" {
		return badRequestf("Title is required.")
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return badRequestf("Start and end dates are required.")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return badRequestf("End date must be after start date.")
	}
	if requireFutureStart && !e.StartsAt.After(now) {
		return badRequestf("Start date must be in the future.")
	}
	if e.Capacity < 1 {
		return badRequestf("Capacity must be at least 1.")
	}
	if e.UnitPriceCents < 0 {
		return badRequestf("Price cannot be negative.")
	}
	if e.Category != "" && !e.Category.Valid() {
		return badRequestf("Unknown category %q.", e.Category)
	}
	return nil
}

// Update applies p to eventID. Only the organizer or an admin may edit,
// and only while the event is DRAFT or PUBLISHED. A price change is
// carried over to the totals of every non-cancelled reservation.
func (s *EventService) Update(ctx context.Context, eventID, actorID uint64, p EventPatch) (*model.Event, error) {
	var out *model.Event
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		ev, err := s.lockManaged(ctx, tx, eventID, actorID)
		if err != nil {
			return err
		}
		if !ev.Status.Editable() {
			return businessRulef("Event %q is %s and can no longer be modified.", ev.Title, ev.Status)
		}
		next := *ev
		startChanged := applyPatch(&next, p)
		now := s.Clock.Now()
		if err := validateEvent(&next, now, startChanged); err != nil {
			return err
		}
		if next.Status == model.EventPublished {
			if missing := next.MissingForPublish(); len(missing) > 0 {
				return badRequestf("A published event needs: %s.", strings.Join(missing, ", "))
			}
		}
		if next.Capacity < ev.Capacity {
			reserved, err := s.Reservations.ReservedSeatsTx(ctx, tx, eventID)
			if err != nil {
				return fmt.Errorf("reserved seats of event %d: %w", eventID, err)
			}
			if next.Capacity < reserved {
				return businessRulef("Capacity cannot be lower than the %d seats already reserved.", reserved)
			}
		}
		next.UpdatedAt = now
		if err := s.Events.UpdateTx(ctx, tx, &next); err != nil {
			return fmt.Errorf("update event %d: %w", eventID, err)
		}
		if next.UnitPriceCents != ev.UnitPriceCents {
			if err := s.Reservations.RecomputeAmountsTx(ctx, tx, eventID, next.UnitPriceCents, now); err != nil {
				return fmt.Errorf("recompute totals of event %d: %w", eventID, err)
			}
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("event updated", "event_id", eventID, "actor_id", actorID)
	return out, nil
}

func applyPatch(e *model.Event, p EventPatch) (startChanged bool) {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.StartsAt != nil && !p.StartsAt.Equal(e.StartsAt) {
		e.StartsAt = p.StartsAt.UTC()
		startChanged = true
	}
	if p.EndsAt != nil {
		e.EndsAt = p.EndsAt.UTC()
	}
	if p.Venue != nil {
		e.Venue = strings.TrimSpace(*p.Venue)
	}
	if p.City != nil {
		e.City = strings.TrimSpace(*p.City)
	}
	if p.Capacity != nil {
		e.Capacity = *p.Capacity
	}
	if p.UnitPriceCents != nil {
		e.UnitPriceCents = *p.UnitPriceCents
	}
	if p.ImageURL != nil {
		e.ImageURL = strings.TrimSpace(*p.ImageURL)
	}
	return startChanged
}

// Publish moves a complete DRAFT event to PUBLISHED.
func (s *EventService) Publish(ctx context.Context, eventID, actorID uint64) (*model.Event, error) {
	var ev *model.Event
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		ev, err = s.lockManaged(ctx, tx, eventID, actorID)
		if err != nil {
			return err
		}
		if !ev.Status.CanTransition(model.EventPublished) {
			return businessRulef("Only draft events can be published; event %q is %s.", ev.Title, ev.Status)
		}
		if missing := ev.MissingForPublish(); len(missing) > 0 {
			return businessRulef("Event cannot be published, missing: %s.", strings.Join(missing, ", "))
		}
		now := s.Clock.Now()
		if !now.Before(ev.EndsAt) {
			return businessRulef("Event %q has already ended.", ev.Title)
		}
		if err := s.Events.UpdateStatusTx(ctx, tx, eventID, model.EventPublished, now); err != nil {
			return fmt.Errorf("publish event %d: %w", eventID, err)
		}
		ev.Status, ev.UpdatedAt = model.EventPublished, now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("event published", "event_id", eventID, "actor_id", actorID)
	s.publish(ctx, queue.ReservationMessage{Type: queue.EventPublished, EventID: ev.ID, EventTitle: ev.Title,
		StartsAt: ev.StartsAt, Status: string(ev.Status), ActorID: actorID})
	return ev, nil
}

// Cancel cancels eventID and, in the same transaction, every reservation
// on it that is not cancelled yet. The client cancellation cutoff does not
// apply here.
func (s *EventService) Cancel(ctx context.Context, eventID, actorID uint64) (*model.Event, []uint64, error) {
	var (
		ev        *model.Event
		cancelled []uint64
	)
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		ev, err = s.lockManaged(ctx, tx, eventID, actorID)
		if err != nil {
			return err
		}
		if !ev.Status.CanTransition(model.EventCancelled) {
			return businessRulef("Event %q is %s and cannot be cancelled.", ev.Title, ev.Status)
		}
		now := s.Clock.Now()
		if !now.Before(ev.EndsAt) {
			return businessRulef("Event %q has already ended and cannot be cancelled.", ev.Title)
		}
		if err := s.Events.UpdateStatusTx(ctx, tx, eventID, model.EventCancelled, now); err != nil {
			return fmt.Errorf("cancel event %d: %w", eventID, err)
		}
		cancelled, err = s.Reservations.CancelActiveByEventTx(ctx, tx, eventID, now)
		if err != nil {
			return fmt.Errorf("cancel reservations of event %d: %w", eventID, err)
		}
		ev.Status, ev.UpdatedAt = model.EventCancelled, now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.Logger.Info("event cancelled", "event_id", eventID, "actor_id", actorID, "reservations_cancelled", len(cancelled))
	s.publish(ctx, queue.ReservationMessage{Type: queue.EventCancelled, EventID: ev.ID, EventTitle: ev.Title,
		StartsAt: ev.StartsAt, Status: string(ev.Status), ActorID: actorID, CancelledIDs: cancelled})
	return ev, cancelled, nil
}

// Delete removes eventID together with its cancelled reservations. It is
// refused while any reservation is still PENDING or CONFIRMED.
func (s *EventService) Delete(ctx context.Context, eventID, actorID uint64) error {
	var removed int64
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		ev, err := s.lockManaged(ctx, tx, eventID, actorID)
		if err != nil {
			return err
		}
		active, err := s.Reservations.CountActiveTx(ctx, tx, eventID)
		if err != nil {
			return fmt.Errorf("count reservations of event %d: %w", eventID, err)
		}
		if active > 0 {
			return businessRulef("Event %q still has %d active reservations and cannot be deleted.", ev.Title, active)
		}
		if removed, err = s.Reservations.DeleteByEventTx(ctx, tx, eventID); err != nil {
			return fmt.Errorf("delete reservations of event %d: %w", eventID, err)
		}
		if err := s.Events.DeleteTx(ctx, tx, eventID); err != nil {
			return lookupErr(err, "Event %d not found.", eventID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.Logger.Info("event deleted", "event_id", eventID, "actor_id", actorID, "reservations_removed", removed)
	return nil
}

// MarkFinished moves every PUBLISHED event that has ended to FINISHED and
// returns how many changed. Running it again right away changes nothing.
func (s *EventService) MarkFinished(ctx context.Context) (int64, error) {
	n, err := s.Events.MarkFinished(ctx, s.Clock.Now())
	if err != nil {
		return 0, fmt.Errorf("mark finished: %w", err)
	}
	if n > 0 {
		s.Logger.Info("events finished", "count", n)
	}
	return n, nil
}

// lockManaged locks eventID and checks that actorID may manage it.
func (s *EventService) lockManaged(ctx context.Context, tx *sql.Tx, eventID, actorID uint64) (*model.Event, error) {
	ev, err := s.Events.GetForUpdateTx(ctx, tx, eventID)
	if err != nil {
		return nil, lookupErr(err, "Event %d not found.", eventID)
	}
	actor, err := s.Users.GetByIDTx(ctx, tx, actorID)
	if err != nil || !canManage(actor, ev) {
		return nil, forbiddenf("Only the organizer of this event or an admin can change it.")
	}
	return ev, nil
}

// IsBookable reports whether e accepts bookings at the current time.
func (s *EventService) IsBookable(e *model.Event) bool {
	return e.IsBookable(s.Clock.Now())
}

// Get returns eventID with its usage. Drafts are only visible to their
// organizer and admins; pass actorID 0 for anonymous callers.
func (s *EventService) Get(ctx context.Context, eventID, actorID uint64) (*EventView, error) {
	row, err := s.Events.GetWithReserved(ctx, eventID)
	if err != nil {
		return nil, lookupErr(err, "Event %d not found.", eventID)
	}
	if row.Event.Status == model.EventDraft {
		actor, err := s.Users.GetByID(ctx, actorID)
		if err != nil || !canManage(actor, &row.Event) {
			return nil, notFoundf("Event %d not found.", eventID)
		}
	}
	v := viewOf(*row)
	return &v, nil
}

// Search lists events matching f with their usage and the total match count.
func (s *EventService) Search(ctx context.Context, f repository.EventFilter) ([]EventView, int64, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, badRequestf("Unknown category %q.", f.Category)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, badRequestf("Unknown event status %q.", f.Status)
	}
	if f.MinPriceCents != nil && f.MaxPriceCents != nil && *f.MinPriceCents > *f.MaxPriceCents {
		return nil, 0, badRequestf("Minimum price cannot exceed maximum price.")
	}
	rows, total, err := s.Events.Search(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("search events: %w", err)
	}
	return viewsOf(rows), total, nil
}

// ListAvailable returns the events open for booking now.
func (s *EventService) ListAvailable(ctx context.Context) ([]EventView, error) {
	rows, err := s.Events.ListBookable(ctx, s.Clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list bookable events: %w", err)
	}
	return viewsOf(rows), nil
}

// ListByOrganizer returns every event organized by organizerID.
func (s *EventService) ListByOrganizer(ctx context.Context, organizerID uint64) ([]EventView, error) {
	rows, _, err := s.Events.Search(ctx, repository.EventFilter{OrganizerID: organizerID, PageSize: 100})
	if err != nil {
		return nil, fmt.Errorf("list events of organizer %d: %w", organizerID, err)
	}
	return viewsOf(rows), nil
}

// Popular returns the bookable events with the most seats held.
func (s *EventService) Popular(ctx context.Context, limit int) ([]EventView, error) {
	rows, err := s.Events.Popular(ctx, s.Clock.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("popular events: %w", err)
	}
	return viewsOf(rows), nil
}

// Cities returns the cities that have published events.
func (s *EventService) Cities(ctx context.Context) ([]string, error) {
	return s.Events.Cities(ctx)
}

// CountByStatus returns the number of events per status, for one
// organizer when organizerID is set.
func (s *EventService) CountByStatus(ctx context.Context, organizerID uint64) (map[model.EventStatus]int64, error) {
	counts, err := s.Events.CountByStatus(ctx, organizerID)
	if err != nil {
		return nil, err
	}
	for _, st := range model.EventStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}
