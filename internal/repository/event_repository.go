// Package repository contains data access logic. This file covers events:
// an Event is a capacity-limited offering owned by an organizer. Times are
// written in UTC at second precision (see dbTime).
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/event-reservation/internal/database"
	"github.com/iliyamo/event-reservation/internal/model"
)

// EventRepo manages persistence for events.
type EventRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewEventRepo constructs an EventRepo with the given DB handle. The
// dialect decides how GetForUpdateTx locks the event row.
func NewEventRepo(db *sql.DB, d database.Dialect) *EventRepo {
	return &EventRepo{db: db, dialect: d}
}

// DB exposes the underlying sql.DB. It allows callers to begin
// transactions spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB {
	return r.db
}

const eventCols = `e.id, e.title, e.description, e.category, e.starts_at, e.ends_at, e.venue, e.city,
	e.capacity, e.unit_price_cents, e.image_url, e.organizer_id, e.status, e.created_at, e.updated_at`

// reservedExpr is the seat count held by active reservations of e.
const reservedExpr = `(SELECT COALESCE(SUM(r.seats), 0) FROM reservations r
	WHERE r.event_id = e.id AND r.status IN ('PENDING', 'CONFIRMED'))`

func eventDest(e *model.Event) []any {
	return []any{&e.ID, &e.Title, &e.Description, &e.Category, &e.StartsAt, &e.EndsAt, &e.Venue, &e.City,
		&e.Capacity, &e.UnitPriceCents, &e.ImageURL, &e.OrganizerID, &e.Status, &e.CreatedAt, &e.UpdatedAt}
}

// EventRow is an event together with the seats currently held on it.
type EventRow struct {
	Event    model.Event
	Reserved int
}

// Create inserts e and assigns the generated ID.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	return r.create(ctx, r.db, e)
}

// CreateTx inserts e using the provided transaction instead of the
// repository's DB handle. The caller must commit or roll back.
func (r *EventRepo) CreateTx(ctx context.Context, tx *sql.Tx, e *model.Event) error {
	return r.create(ctx, tx, e)
}

func (r *EventRepo) create(ctx context.Context, q dbtx, e *model.Event) error {
	e.StartsAt, e.EndsAt = dbTime(e.StartsAt), dbTime(e.EndsAt)
	e.CreatedAt, e.UpdatedAt = dbTime(e.CreatedAt), dbTime(e.UpdatedAt)
	res, err := q.ExecContext(ctx,
		`INSERT INTO events (title, description, category, starts_at, ends_at, venue, city, capacity,
			unit_price_cents, image_url, organizer_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, e.Category, e.StartsAt, e.EndsAt, e.Venue, e.City, e.Capacity,
		e.UnitPriceCents, e.ImageURL, e.OrganizerID, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID retrieves an event by its ID. It returns ErrNotFound if there is
// no matching row.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRowContext(ctx, "SELECT "+eventCols+" FROM events e WHERE e.id = ?", id).Scan(eventDest(&e)...)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// GetForUpdateTx reads the event inside tx and locks its row until tx
// ends. Every mutation of the event or of its reservations goes through
// this lock first, so capacity checks and writes cannot interleave.
func (r *EventRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Event, error) {
	var e model.Event
	q := "SELECT " + eventCols + " FROM events e WHERE e.id = ?" + r.dialect.LockSuffix()
	if err := tx.QueryRowContext(ctx, q, id).Scan(eventDest(&e)...); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// GetWithReserved returns the event and the seats held on it.
func (r *EventRepo) GetWithReserved(ctx context.Context, id uint64) (*EventRow, error) {
	var row EventRow
	dest := append(eventDest(&row.Event), &row.Reserved)
	err := r.db.QueryRowContext(ctx, "SELECT "+eventCols+", "+reservedExpr+" FROM events e WHERE e.id = ?", id).Scan(dest...)
	if err != nil {
		return nil, notFound(err)
	}
	return &row, nil
}

// UpdateTx writes every editable column of e. The caller holds the row
// lock, so the row is known to exist.
func (r *EventRepo) UpdateTx(ctx context.Context, tx *sql.Tx, e *model.Event) error {
	e.StartsAt, e.EndsAt, e.UpdatedAt = dbTime(e.StartsAt), dbTime(e.EndsAt), dbTime(e.UpdatedAt)
	_, err := tx.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, category = ?, starts_at = ?, ends_at = ?, venue = ?,
			city = ?, capacity = ?, unit_price_cents = ?, image_url = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Category, e.StartsAt, e.EndsAt, e.Venue,
		e.City, e.Capacity, e.UnitPriceCents, e.ImageURL, e.UpdatedAt, e.ID)
	return err
}

// UpdateStatusTx sets the status of event id.
func (r *EventRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.EventStatus, now time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE events SET status = ?, updated_at = ? WHERE id = ?", status, dbTime(now), id)
	return err
}

// DeleteTx removes event id. Its reservations must already be gone.
func (r *EventRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFinished moves every PUBLISHED event whose end is before now to
// FINISHED in a single statement and returns how many rows changed. The
// UPDATE waits on rows locked by in-flight bookings, so a booking either
// commits against a PUBLISHED event or sees it FINISHED.
func (r *EventRepo) MarkFinished(ctx context.Context, now time.Time) (int64, error) {
	now = dbTime(now)
	res, err := r.db.ExecContext(ctx,
		"UPDATE events SET status = ?, updated_at = ? WHERE status = ? AND ends_at < ?",
		model.EventFinished, now, model.EventPublished, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountByOrganizerTx returns how many events userID organizes.
func (r *EventRepo) CountByOrganizerTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE organizer_id = ?", userID).Scan(&n)
	return n, err
}

// CountByStatus returns the number of events per status. A non-zero
// organizerID restricts the count to that organizer's events.
func (r *EventRepo) CountByStatus(ctx context.Context, organizerID uint64) (map[model.EventStatus]int64, error) {
	q := "SELECT status, COUNT(*) FROM events"
	var args []any
	if organizerID != 0 {
		q += " WHERE organizer_id = ?"
		args = append(args, organizerID)
	}
	q += " GROUP BY status"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.EventStatus]int64{}
	for rows.Next() {
		var s model.EventStatus
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

// Cities returns the distinct non-empty cities of published events.
func (r *EventRepo) Cities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT city FROM events WHERE city <> '' AND status = ? ORDER BY city", model.EventPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
