package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/event-reservation/internal/model"
)

// StatusTotals aggregates the reservations sharing one status.
type StatusTotals struct {
	Status      model.ReservationStatus
	Count       int64
	Seats       int64
	AmountCents int64
}

// TotalsScope restricts TotalsByStatus. Zero values disable a filter;
// Since and Until bound the reservation creation time, Until exclusive.
type TotalsScope struct {
	EventID     uint64
	OrganizerID uint64
	UserID      uint64
	Since       time.Time
	Until       time.Time
}

// TotalsByStatus groups the reservations in scope by status.
func (r *ReservationRepo) TotalsByStatus(ctx context.Context, s TotalsScope) (map[model.ReservationStatus]StatusTotals, error) {
	where, args := s.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.status, COUNT(*), COALESCE(SUM(r.seats), 0), COALESCE(SUM(r.total_amount_cents), 0)
		 FROM reservations r JOIN events e ON e.id = r.event_id
		 WHERE `+where+` GROUP BY r.status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.ReservationStatus]StatusTotals{}
	for rows.Next() {
		var t StatusTotals
		if err := rows.Scan(&t.Status, &t.Count, &t.Seats, &t.AmountCents); err != nil {
			return nil, err
		}
		out[t.Status] = t
	}
	return out, rows.Err()
}

// CreatedTimes returns the creation time of every reservation in scope
// with the given status. Callers bucket them; doing it in Go keeps the
// query portable across MySQL and SQLite date functions.
func (r *ReservationRepo) CreatedTimes(ctx context.Context, s TotalsScope, status model.ReservationStatus) ([]time.Time, error) {
	where, args := s.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT r.created_at FROM reservations r JOIN events e ON e.id = r.event_id
		 WHERE `+where+` AND r.status = ?`, append(args, status)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

func (s TotalsScope) where() (string, []any) {
	where := []string{"1=1"}
	var args []any
	if s.EventID != 0 {
		where = append(where, "r.event_id = ?")
		args = append(args, s.EventID)
	}
	if s.OrganizerID != 0 {
		where = append(where, "e.organizer_id = ?")
		args = append(args, s.OrganizerID)
	}
	if s.UserID != 0 {
		where = append(where, "r.user_id = ?")
		args = append(args, s.UserID)
	}
	if !s.Since.IsZero() {
		where = append(where, "r.created_at >= ?")
		args = append(args, dbTime(s.Since))
	}
	if !s.Until.IsZero() {
		where = append(where, "r.created_at < ?")
		args = append(args, dbTime(s.Until))
	}
	return strings.Join(where, " AND "), args
}
