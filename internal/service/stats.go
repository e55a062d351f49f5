package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/event-reservation/internal/capacity"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/repository"
)

// StatsService derives read-only reports from reservations. Revenue only
// ever counts CONFIRMED reservations. Reports read outside the event lock
// and may lag concurrent bookings.
type StatsService struct {
	Deps
}

// NewStatsService panics when a required dependency is missing.
func NewStatsService(d Deps) *StatsService {
	return &StatsService{Deps: d.withDefaults("stats")}
}

// EventStats summarizes the reservations of one event.
type EventStats struct {
	EventID        uint64                            `json:"event_id"`
	Reservations   int64                             `json:"reservations"`
	ReservedSeats  int                               `json:"reserved_seats"`
	AvailableSeats int                               `json:"available_seats"`
	Capacity       int                               `json:"capacity"`
	FillRate       float64                           `json:"fill_rate"`
	RevenueCents   int64                             `json:"revenue_cents"`
	ByStatus       map[model.ReservationStatus]int64 `json:"by_status"`
}

// OrganizerStats summarizes the events of one organizer.
type OrganizerStats struct {
	OrganizerID    uint64                            `json:"organizer_id"`
	Events         int64                             `json:"events"`
	EventsByStatus map[model.EventStatus]int64       `json:"events_by_status"`
	Reservations   int64                             `json:"reservations"`
	RevenueCents   int64                             `json:"revenue_cents"`
	ByStatus       map[model.ReservationStatus]int64 `json:"by_status"`
}

// GlobalStats summarizes the whole system.
type GlobalStats struct {
	Reservations   int64                             `json:"reservations"`
	RevenueCents   int64                             `json:"revenue_cents"`
	ConversionRate float64                           `json:"conversion_rate"`
	ByStatus       map[model.ReservationStatus]int64 `json:"by_status"`
	EventsByStatus map[model.EventStatus]int64       `json:"events_by_status"`
	UsersByRole    map[model.Role]int64              `json:"users_by_role"`
}

type totals map[model.ReservationStatus]repository.StatusTotals

func (t totals) count() int64 {
	var n int64
	for _, v := range t {
		n += v.Count
	}
	return n
}

func (t totals) byStatus() map[model.ReservationStatus]int64 {
	out := make(map[model.ReservationStatus]int64, len(model.ReservationStatuses))
	for _, st := range model.ReservationStatuses {
		out[st] = t[st].Count
	}
	return out
}

func (t totals) revenue() int64 { return t[model.ReservationConfirmed].AmountCents }

func (t totals) reservedSeats() int {
	return int(t[model.ReservationPending].Seats + t[model.ReservationConfirmed].Seats)
}

// conversionRate is the share of reservations that were confirmed, in percent.
func (t totals) conversionRate() float64 {
	n := t.count()
	if n == 0 {
		return 0
	}
	return float64(t[model.ReservationConfirmed].Count) * 100 / float64(n)
}

func (s *StatsService) totals(ctx context.Context, scope repository.TotalsScope) (totals, error) {
	t, err := s.Reservations.TotalsByStatus(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("reservation totals: %w", err)
	}
	return totals(t), nil
}

// EventStats reports on eventID. Only its organizer or an admin may ask.
func (s *StatsService) EventStats(ctx context.Context, eventID, actorID uint64) (*EventStats, error) {
	ev, err := s.Events.GetByID(ctx, eventID)
	if err != nil {
		return nil, lookupErr(err, "Event %d not found.", eventID)
	}
	actor, err := s.Users.GetByID(ctx, actorID)
	if err != nil || !canManage(actor, ev) {
		return nil, forbiddenf("Only the organizer of this event can see its statistics.")
	}
	t, err := s.totals(ctx, repository.TotalsScope{EventID: eventID})
	if err != nil {
		return nil, err
	}
	usage := capacity.FromReserved(ev.Capacity, t.reservedSeats())
	return &EventStats{
		EventID:        eventID,
		Reservations:   t.count(),
		ReservedSeats:  usage.Reserved,
		AvailableSeats: usage.Available(),
		Capacity:       usage.Capacity,
		FillRate:       usage.FillRate(),
		RevenueCents:   t.revenue(),
		ByStatus:       t.byStatus(),
	}, nil
}

// OrganizerStats reports on the events of organizerID.
func (s *StatsService) OrganizerStats(ctx context.Context, organizerID uint64) (*OrganizerStats, error) {
	byStatus, err := s.Events.CountByStatus(ctx, organizerID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	t, err := s.totals(ctx, repository.TotalsScope{OrganizerID: organizerID})
	if err != nil {
		return nil, err
	}
	out := &OrganizerStats{
		OrganizerID:    organizerID,
		EventsByStatus: map[model.EventStatus]int64{},
		Reservations:   t.count(),
		RevenueCents:   t.revenue(),
		ByStatus:       t.byStatus(),
	}
	for _, st := range model.EventStatuses {
		out.EventsByStatus[st] = byStatus[st]
		out.Events += byStatus[st]
	}
	return out, nil
}

// GlobalStats reports on every reservation, event and user.
func (s *StatsService) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	t, err := s.totals(ctx, repository.TotalsScope{})
	if err != nil {
		return nil, err
	}
	events, err := s.Events.CountByStatus(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	users, err := s.Users.CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	return &GlobalStats{
		Reservations:   t.count(),
		RevenueCents:   t.revenue(),
		ConversionRate: t.conversionRate(),
		ByStatus:       t.byStatus(),
		EventsByStatus: events,
		UsersByRole:    users,
	}, nil
}

// EventRevenue is the confirmed revenue of eventID.
func (s *StatsService) EventRevenue(ctx context.Context, eventID uint64) (int64, error) {
	t, err := s.totals(ctx, repository.TotalsScope{EventID: eventID})
	if err != nil {
		return 0, err
	}
	return t.revenue(), nil
}

// OrganizerRevenue is the confirmed revenue over every event of organizerID.
func (s *StatsService) OrganizerRevenue(ctx context.Context, organizerID uint64) (int64, error) {
	t, err := s.totals(ctx, repository.TotalsScope{OrganizerID: organizerID})
	if err != nil {
		return 0, err
	}
	return t.revenue(), nil
}

// TotalRevenue is the confirmed revenue over the whole system.
func (s *StatsService) TotalRevenue(ctx context.Context) (int64, error) {
	t, err := s.totals(ctx, repository.TotalsScope{})
	if err != nil {
		return 0, err
	}
	return t.revenue(), nil
}

// MonthlyRevenue is the confirmed revenue of reservations made since the
// first day of the current month.
func (s *StatsService) MonthlyRevenue(ctx context.Context) (int64, error) {
	now := s.Clock.Now()
	since := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	t, err := s.totals(ctx, repository.TotalsScope{Since: since})
	if err != nil {
		return 0, err
	}
	return t.revenue(), nil
}

// SpentByUser is what userID paid over their confirmed reservations.
func (s *StatsService) SpentByUser(ctx context.Context, userID uint64) (int64, error) {
	t, err := s.totals(ctx, repository.TotalsScope{UserID: userID})
	if err != nil {
		return 0, err
	}
	return t.revenue(), nil
}

// ConversionRate is the share of all reservations that were confirmed, in percent.
func (s *StatsService) ConversionRate(ctx context.Context) (float64, error) {
	t, err := s.totals(ctx, repository.TotalsScope{})
	if err != nil {
		return 0, err
	}
	return t.conversionRate(), nil
}

// ConfirmedByMonth counts the confirmed reservations made in each month of
// year; index 0 is January.
func (s *StatsService) ConfirmedByMonth(ctx context.Context, year int) ([12]int64, error) {
	var out [12]int64
	if year < 1970 || year > 9999 {
		return out, badRequestf("Invalid year %d.", year)
	}
	since := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	times, err := s.Reservations.CreatedTimes(ctx,
		repository.TotalsScope{Since: since, Until: since.AddDate(1, 0, 0)}, model.ReservationConfirmed)
	if err != nil {
		return out, fmt.Errorf("confirmed reservations of %d: %w", year, err)
	}
	for _, t := range times {
		out[t.Month()-1]++
	}
	return out, nil
}

// Recent returns the latest reservations across the system.
func (s *StatsService) Recent(ctx context.Context, limit int) ([]repository.ReservationDetail, error) {
	if limit < 1 || limit > 50 {
		limit = 50
	}
	return s.Reservations.Search(ctx, repository.ReservationFilter{Limit: limit})
}
