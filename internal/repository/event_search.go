package repository

import (
	"context"
	"strings"
	"time"

	"github.com/iliyamo/event-reservation/internal/model"
)

// EventFilter defines filters and pagination for listing events. Zero
// values disable a filter.
type EventFilter struct {
	Category      model.Category
	Status        model.EventStatus
	City          string
	MinPriceCents *int64
	MaxPriceCents *int64
	StartsFrom    time.Time
	EndsBefore    time.Time
	Keyword       string
	OrganizerID   uint64
	Page          int
	PageSize      int
}

// Search returns the events matching f ordered by start time, with the
// seats held on each, and the total number of matches.
func (r *EventRepo) Search(ctx context.Context, f EventFilter) ([]EventRow, int64, error) {
	where := []string{}
	args := []any{}

	if f.Category != "" {
		where = append(where, "e.category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, f.Status)
	}
	if f.City != "" {
		where = append(where, "LOWER(e.city) = ?")
		args = append(args, strings.ToLower(strings.TrimSpace(f.City)))
	}
	if f.MinPriceCents != nil {
		where = append(where, "e.unit_price_cents >= ?")
		args = append(args, *f.MinPriceCents)
	}
	if f.MaxPriceCents != nil {
		where = append(where, "e.unit_price_cents <= ?")
		args = append(args, *f.MaxPriceCents)
	}
	if !f.StartsFrom.IsZero() {
		where = append(where, "e.starts_at >= ?")
		args = append(args, dbTime(f.StartsFrom))
	}
	if !f.EndsBefore.IsZero() {
		where = append(where, "e.ends_at <= ?")
		args = append(args, dbTime(f.EndsBefore))
	}
	if f.Keyword != "" {
		where = append(where, "LOWER(e.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Keyword)+"%")
	}
	if f.OrganizerID != 0 {
		where = append(where, "e.organizer_id = ?")
		args = append(args, f.OrganizerID)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(f.Page, f.PageSize)
	rows, err := r.list(ctx, cond+" ORDER BY e.starts_at ASC, e.id ASC LIMIT ? OFFSET ?",
		append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListBookable returns the PUBLISHED events that have not ended at now,
// soonest first.
func (r *EventRepo) ListBookable(ctx context.Context, now time.Time) ([]EventRow, error) {
	return r.list(ctx, "e.status = ? AND e.ends_at > ? ORDER BY e.starts_at ASC, e.id ASC",
		model.EventPublished, dbTime(now))
}

// Popular returns up to limit bookable events with the most seats held.
func (r *EventRepo) Popular(ctx context.Context, now time.Time, limit int) ([]EventRow, error) {
	_, size := normalizePage(1, limit)
	return r.list(ctx, "e.status = ? AND e.ends_at > ? ORDER BY reserved DESC, e.starts_at ASC LIMIT ?",
		model.EventPublished, dbTime(now), size)
}

func (r *EventRepo) list(ctx context.Context, tail string, args ...any) ([]EventRow, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+eventCols+", "+reservedExpr+" AS reserved FROM events e WHERE "+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EventRow{}
	for rows.Next() {
		var row EventRow
		if err := rows.Scan(append(eventDest(&row.Event), &row.Reserved)...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
