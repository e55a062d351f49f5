package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/event-reservation/internal/capacity"
	"github.com/iliyamo/event-reservation/internal/code"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
)

// maxInsertAttempts bounds how often a freshly drawn code may collide on
// insert with a reservation committed concurrently for another event.
const maxInsertAttempts = 3

// ReservationService creates, confirms and cancels reservations.
type ReservationService struct {
	Deps
}

// NewReservationService panics when a required dependency is missing.
func NewReservationService(d Deps) *ReservationService {
	return &ReservationService{Deps: d.withDefaults("reservations")}
}

// Create books seats on eventID for userID and returns the PENDING
// reservation. The availability check and the insert run under the event
// row lock, so concurrent bookings cannot both take the last seats.
func (s *ReservationService) Create(ctx context.Context, userID, eventID uint64, seats int, note string) (*model.Reservation, error) {
	note = strings.TrimSpace(note)
	var (
		out *model.Reservation
		ev  *model.Event
	)
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := s.Users.GetByIDTx(ctx, tx, userID); err != nil {
			return lookupErr(err, "User %d not found.", userID)
		}
		var err error
		ev, err = s.Events.GetForUpdateTx(ctx, tx, eventID)
		if err != nil {
			return lookupErr(err, "Event %d not found.", eventID)
		}
		now := s.Clock.Now()
		if !ev.IsBookable(now) {
			return businessRulef("Event %q is not open for booking.", ev.Title)
		}
		if limit := s.Rules.MaxSeatsPerReservation; seats < 1 || seats > limit {
			return badRequestf("Seat count must be between 1 and %d.", limit)
		}
		if utf8.RuneCountInString(note) > s.Rules.MaxNoteLength {
			return badRequestf("Note must be at most %d characters.", s.Rules.MaxNoteLength)
		}

		reserved, err := s.Reservations.ReservedSeatsTx(ctx, tx, eventID)
		if err != nil {
			return fmt.Errorf("reserved seats of event %d: %w", eventID, err)
		}
		usage := capacity.FromReserved(ev.Capacity, reserved)
		if usage.Overbooked() {
			s.Logger.Error("capacity invariant broken", "event_id", eventID,
				"capacity", usage.Capacity, "reserved", usage.Reserved)
			return fmt.Errorf("event %d holds %d seats over its capacity of %d", eventID, usage.Reserved, usage.Capacity)
		}
		if usage.IsFull() {
			return businessRulef("This event is full (0 places available).")
		}
		if seats > usage.Available() {
			return businessRulef("Only %d places available.", usage.Available())
		}

		res := &model.Reservation{
			EventID:          eventID,
			UserID:           userID,
			Seats:            seats,
			TotalAmountCents: int64(seats) * ev.UnitPriceCents,
			Status:           model.ReservationPending,
			Note:             note,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.insertWithCode(ctx, tx, res); err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("reservation created", "reservation_id", out.ID, "event_id", eventID,
		"user_id", userID, "seats", seats, "code", out.Code)
	s.publish(ctx, reservationMessage(queue.ReservationCreated, out, ev, userID))
	return out, nil
}

func (s *ReservationService) insertWithCode(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	exists := func(c string) (bool, error) { return s.Reservations.CodeExistsTx(ctx, tx, c) }
	for i := 0; i < maxInsertAttempts; i++ {
		c, err := s.Codes.GenerateUnique(exists)
		if err != nil {
			if errors.Is(err, code.ErrExhausted) {
				s.Logger.Error("reservation code space exhausted", "err", err)
				return &Error{Kind: ErrExhausted, Message: "Cannot allocate a unique reservation code.", cause: err}
			}
			return fmt.Errorf("allocate code: %w", err)
		}
		res.Code = c
		err = s.Reservations.CreateTx(ctx, tx, res)
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return err
		}
		s.Logger.Warn("reservation code collided on insert", "code", c)
	}
	return &Error{Kind: ErrExhausted, Message: "Cannot allocate a unique reservation code.", cause: code.ErrExhausted}
}

// Confirm moves a PENDING reservation to CONFIRMED.
func (s *ReservationService) Confirm(ctx context.Context, reservationID uint64) (*model.Reservation, error) {
	return s.confirm(ctx, reservationID, 0)
}

// ConfirmAs is Confirm on behalf of actorID, who must be the user who made
// the reservation, the event's organizer, or an admin.
func (s *ReservationService) ConfirmAs(ctx context.Context, reservationID, actorID uint64) (*model.Reservation, error) {
	if actorID == 0 {
		return nil, forbiddenf("You are not allowed to confirm this reservation.")
	}
	return s.confirm(ctx, reservationID, actorID)
}

func (s *ReservationService) confirm(ctx context.Context, reservationID, actorID uint64) (*model.Reservation, error) {
	var (
		res *model.Reservation
		ev  *model.Event
	)
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		res, ev, err = s.lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if actorID != 0 {
			if err := s.authorize(ctx, tx, actorID, res, ev, "confirm"); err != nil {
				return err
			}
		}
		switch res.Status {
		case model.ReservationConfirmed:
			return businessRulef("Reservation %s is already confirmed.", res.Code)
		case model.ReservationCancelled:
			return businessRulef("Reservation %s is cancelled and cannot be confirmed.", res.Code)
		}
		now := s.Clock.Now()
		if ev.Status == model.EventCancelled || ev.Status == model.EventFinished || !now.Before(ev.EndsAt) {
			return businessRulef("Event %q is over or cancelled; reservation %s can no longer be confirmed.", ev.Title, res.Code)
		}
		if !res.Status.CanTransition(model.ReservationConfirmed) {
			return businessRulef("Reservation %s cannot be confirmed from status %s.", res.Code, res.Status)
		}
		if err := s.Reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationConfirmed, now); err != nil {
			return fmt.Errorf("confirm reservation %d: %w", res.ID, err)
		}
		res.Status, res.UpdatedAt = model.ReservationConfirmed, now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("reservation confirmed", "reservation_id", res.ID, "event_id", ev.ID, "actor_id", actorID)
	s.publish(ctx, reservationMessage(queue.ReservationConfirmed, res, ev, actorID))
	return res, nil
}

// Cancel cancels a reservation on behalf of actorID. Only the user who
// made it, the event's organizer or an admin may cancel, and only while
// the event starts more than the cancellation cutoff from now.
func (s *ReservationService) Cancel(ctx context.Context, reservationID, actorID uint64) (*model.Reservation, error) {
	var (
		res *model.Reservation
		ev  *model.Event
	)
	err := withTx(ctx, s.DB, func(tx *sql.Tx) error {
		var err error
		res, ev, err = s.lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, tx, actorID, res, ev, "cancel"); err != nil {
			return err
		}
		if res.Status == model.ReservationCancelled {
			return businessRulef("Reservation %s is already cancelled.", res.Code)
		}
		now := s.Clock.Now()
		cutoff := s.Rules.CancellationCutoff
		if !now.Before(ev.StartsAt.Add(-cutoff)) {
			return businessRulef("Reservations can only be cancelled up to %d hours before the event starts.", int(cutoff.Hours()))
		}
		if !res.Status.CanTransition(model.ReservationCancelled) {
			return businessRulef("Reservation %s cannot be cancelled from status %s.", res.Code, res.Status)
		}
		if err := s.Reservations.UpdateStatusTx(ctx, tx, res.ID, model.ReservationCancelled, now); err != nil {
			return fmt.Errorf("cancel reservation %d: %w", res.ID, err)
		}
		res.Status, res.UpdatedAt = model.ReservationCancelled, now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("reservation cancelled", "reservation_id", res.ID, "event_id", ev.ID, "actor_id", actorID)
	s.publish(ctx, reservationMessage(queue.ReservationCancelled, res, ev, actorID))
	return res, nil
}

// lockReservation locks the event of reservationID and returns both,
// reading the reservation again once the lock is held.
func (s *ReservationService) lockReservation(ctx context.Context, tx *sql.Tx, reservationID uint64) (*model.Reservation, *model.Event, error) {
	res, err := s.Reservations.GetByIDTx(ctx, tx, reservationID)
	if err != nil {
		return nil, nil, lookupErr(err, "Reservation %d not found.", reservationID)
	}
	ev, err := s.Events.GetForUpdateTx(ctx, tx, res.EventID)
	if err != nil {
		return nil, nil, lookupErr(err, "Event %d not found.", res.EventID)
	}
	res, err = s.Reservations.GetByIDTx(ctx, tx, reservationID)
	if err != nil {
		return nil, nil, lookupErr(err, "Reservation %d not found.", reservationID)
	}
	return res, ev, nil
}

func (s *ReservationService) authorize(ctx context.Context, tx *sql.Tx, actorID uint64, res *model.Reservation, ev *model.Event, verb string) error {
	actor, err := s.Users.GetByIDTx(ctx, tx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return forbiddenf("You are not allowed to %s this reservation.", verb)
		}
		return fmt.Errorf("load actor %d: %w", actorID, err)
	}
	if !canActOn(actor, res, ev) {
		return forbiddenf("You are not allowed to %s this reservation.", verb)
	}
	return nil
}

// FindByCode returns the reservation holding c, or nil when c is malformed
// or unknown. The prefix of c is matched without regard to case.
func (s *ReservationService) FindByCode(ctx context.Context, c string) (*model.Reservation, error) {
	c, ok := s.Codes.Canonical(c)
	if !ok {
		return nil, nil
	}
	res, err := s.Reservations.GetByCode(ctx, c)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return res, err
}

// Get returns reservation id if actorID may see it.
func (s *ReservationService) Get(ctx context.Context, id, actorID uint64) (*model.Reservation, error) {
	res, err := s.Reservations.GetByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "Reservation %d not found.", id)
	}
	if err := s.checkViewer(ctx, actorID, res); err != nil {
		return nil, err
	}
	return res, nil
}

// GetByCodeAs is FindByCode restricted to the users allowed to see the
// reservation; a miss is reported as NotFound.
func (s *ReservationService) GetByCodeAs(ctx context.Context, c string, actorID uint64) (*model.Reservation, error) {
	res, err := s.FindByCode(ctx, c)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, notFoundf("Reservation %s not found.", c)
	}
	if err := s.checkViewer(ctx, actorID, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ReservationService) checkViewer(ctx context.Context, actorID uint64, res *model.Reservation) error {
	if actorID == res.UserID {
		return nil
	}
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil {
		return forbiddenf("You are not allowed to see this reservation.")
	}
	ev, err := s.Events.GetByID(ctx, res.EventID)
	if err != nil {
		return lookupErr(err, "Event %d not found.", res.EventID)
	}
	if !canActOn(actor, res, ev) {
		return forbiddenf("You are not allowed to see this reservation.")
	}
	return nil
}

// ListByUser returns the reservations of userID, newest first.
func (s *ReservationService) ListByUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error) {
	return s.Reservations.Search(ctx, repository.ReservationFilter{UserID: userID, Limit: 100})
}

// ListUpcomingByUser returns the active reservations of userID on events
// that have not started yet, soonest first.
func (s *ReservationService) ListUpcomingByUser(ctx context.Context, userID uint64) ([]repository.ReservationDetail, error) {
	return s.Reservations.Search(ctx, repository.ReservationFilter{UserID: userID, UpcomingAt: s.Clock.Now(), Limit: 100})
}

// ListByEvent returns every reservation of eventID. Only the organizer of
// the event or an admin may list them.
func (s *ReservationService) ListByEvent(ctx context.Context, eventID, actorID uint64) ([]model.Reservation, error) {
	ev, err := s.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, lookupErr(err, "Event %d not found.", eventID)
	}
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil || !canManage(actor, ev) {
		return nil, forbiddenf("Only the organizer of this event can list its reservations.")
	}
	return s.Reservations.ListByEvent(ctx, eventID)
}

// Search filters reservations across the system. An organizer only sees
// reservations on their own events; admins see everything.
func (s *ReservationService) Search(ctx context.Context, f repository.ReservationFilter, actorID uint64) ([]repository.ReservationDetail, error) {
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil {
		return nil, forbiddenf("You are not allowed to search reservations.")
	}
	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleOrganizer:
		f.OrganizerID = actor.ID
	default:
		f.UserID = actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, badRequestf("Unknown reservation status %q.", f.Status)
	}
	return s.Reservations.Search(ctx, f)
}

// Summary renders reservation id as a short plain text receipt for the
// users allowed to see it.
func (s *ReservationService) Summary(ctx context.Context, id, actorID uint64) (string, error) {
	res, err := s.Get(ctx, id, actorID)
	if err != nil {
		return "", err
	}
	ev, err := s.Events.GetByID(ctx, res.EventID)
	if err != nil {
		return "", lookupErr(err, "Event %d not found.", res.EventID)
	}
	return fmt.Sprintf("Reservation %s\nEvent: %s\nDate: %s\nSeats: %d\nAmount: %s\nStatus: %s\n",
		res.Code, ev.Title, ev.StartsAt.UTC().Format("2006-01-02 15:04"),
		res.Seats, formatCents(res.TotalAmountCents), res.Status), nil
}

func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
