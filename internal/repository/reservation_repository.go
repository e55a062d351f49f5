package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/event-reservation/internal/model"
)

// ReservationRepo provides CRUD operations for reservations. Mutations
// take a *sql.Tx: they are only valid while the caller holds the lock on
// the reservation's event (EventRepo.GetForUpdateTx). All timestamp
// fields are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `r.id, r.event_id, r.user_id, r.seats, r.total_amount_cents, r.code, r.status, r.note,
	r.created_at, r.updated_at`

func reservationDest(res *model.Reservation) []any {
	return []any{&res.ID, &res.EventID, &res.UserID, &res.Seats, &res.TotalAmountCents, &res.Code,
		&res.Status, &res.Note, &res.CreatedAt, &res.UpdatedAt}
}

// ReservationDetail is a reservation joined with the event fields shown
// next to it in listings.
type ReservationDetail struct {
	Reservation    model.Reservation
	EventTitle     string
	EventStartsAt  time.Time
	EventVenue     string
	EventCity      string
	EventStatus    model.EventStatus
	EventOrganizer uint64
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID. A code collision is
// reported as ErrDuplicateCode.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	res.CreatedAt, res.UpdatedAt = dbTime(res.CreatedAt), dbTime(res.UpdatedAt)
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (event_id, user_id, seats, total_amount_cents, code, status, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.EventID, res.UserID, res.Seats, res.TotalAmountCents, res.Code, res.Status, res.Note,
		res.CreatedAt, res.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateCode
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetByID returns reservation id or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.getOne(ctx, r.db, "r.id = ?", id)
}

// GetByIDTx is GetByID inside tx.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return r.getOne(ctx, tx, "r.id = ?", id)
}

// GetByCode returns the reservation holding code or ErrNotFound.
func (r *ReservationRepo) GetByCode(ctx context.Context, code string) (*model.Reservation, error) {
	return r.getOne(ctx, r.db, "r.code = ?", code)
}

func (r *ReservationRepo) getOne(ctx context.Context, q dbtx, cond string, arg any) (*model.Reservation, error) {
	var res model.Reservation
	if err := q.QueryRowContext(ctx, "SELECT "+reservationCols+" FROM reservations r WHERE "+cond, arg).
		Scan(reservationDest(&res)...); err != nil {
		return nil, notFound(err)
	}
	return &res, nil
}

// CodeExistsTx reports whether any reservation already holds code.
func (r *ReservationRepo) CodeExistsTx(ctx context.Context, tx *sql.Tx, code string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE code = ?", code).Scan(&n)
	return n > 0, err
}

// ReservedSeatsTx sums the seats of the active reservations of eventID.
func (r *ReservationRepo) ReservedSeatsTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(seats), 0) FROM reservations WHERE event_id = ? AND status IN (?, ?)",
		eventID, model.ReservationPending, model.ReservationConfirmed).Scan(&n)
	return n, err
}

// CountActiveTx counts the reservations of eventID that are not cancelled.
func (r *ReservationRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE event_id = ? AND status <> ?",
		eventID, model.ReservationCancelled).Scan(&n)
	return n, err
}

// UpdateStatusTx sets the status of reservation id.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus, now time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?",
		status, dbTime(now), id)
	return err
}

// CancelActiveByEventTx cancels every reservation of eventID that is not
// cancelled yet and returns the IDs it changed.
func (r *ReservationRepo) CancelActiveByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64, now time.Time) ([]uint64, error) {
	ids, err := r.idsTx(ctx, tx, "event_id = ? AND status <> ?", eventID, model.ReservationCancelled)
	if err != nil || len(ids) == 0 {
		return ids, err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE reservations SET status = ?, updated_at = ? WHERE event_id = ? AND status <> ?",
		model.ReservationCancelled, dbTime(now), eventID, model.ReservationCancelled)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RecomputeAmountsTx rewrites the total of every non-cancelled reservation
// of eventID from its seat count and unitPriceCents.
func (r *ReservationRepo) RecomputeAmountsTx(ctx context.Context, tx *sql.Tx, eventID uint64, unitPriceCents int64, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE reservations SET total_amount_cents = seats * ?, updated_at = ? WHERE event_id = ? AND status <> ?",
		unitPriceCents, dbTime(now), eventID, model.ReservationCancelled)
	return err
}

// DeleteByEventTx removes every reservation of eventID and returns how
// many were deleted.
func (r *ReservationRepo) DeleteByEventTx(ctx context.Context, tx *sql.Tx, eventID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE event_id = ?", eventID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteByUserTx removes every reservation made by userID and returns how
// many were deleted.
func (r *ReservationRepo) DeleteByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM reservations WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EventIDsByUserTx lists the distinct events userID holds reservations on,
// in ascending order so callers lock them in a stable order.
func (r *ReservationRepo) EventIDsByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT DISTINCT event_id FROM reservations WHERE user_id = ? ORDER BY event_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *ReservationRepo) idsTx(ctx context.Context, tx *sql.Tx, cond string, args ...any) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM reservations WHERE "+cond+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListByEvent returns every reservation of eventID, newest first.
func (r *ReservationRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+reservationCols+" FROM reservations r WHERE r.event_id = ? ORDER BY r.created_at DESC, r.id DESC", eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(reservationDest(&res)...); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ReservationFilter narrows Search. Zero values disable a filter; Code
// matches as a substring.
type ReservationFilter struct {
	UserID      uint64
	EventID     uint64
	OrganizerID uint64
	Status      model.ReservationStatus
	Code        string
	UpcomingAt  time.Time
	Limit       int
}

// Search returns reservations with their event details, newest first.
// When UpcomingAt is set only active reservations on events starting
// after it are returned, soonest event first.
func (r *ReservationRepo) Search(ctx context.Context, f ReservationFilter) ([]ReservationDetail, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.UserID != 0 {
		where = append(where, "r.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EventID != 0 {
		where = append(where, "r.event_id = ?")
		args = append(args, f.EventID)
	}
	if f.OrganizerID != 0 {
		where = append(where, "e.organizer_id = ?")
		args = append(args, f.OrganizerID)
	}
	if f.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, f.Status)
	}
	if f.Code != "" {
		where = append(where, "r.code LIKE ?")
		args = append(args, "%"+strings.ToUpper(strings.TrimSpace(f.Code))+"%")
	}
	order := "r.created_at DESC, r.id DESC"
	if !f.UpcomingAt.IsZero() {
		where = append(where, "e.starts_at > ?", "r.status <> ?")
		args = append(args, dbTime(f.UpcomingAt), model.ReservationCancelled)
		order = "e.starts_at ASC, r.id ASC"
	}
	_, limit := normalizePage(1, f.Limit)
	args = append(args, limit)

	q := `SELECT ` + reservationCols + `, e.title, e.starts_at, e.venue, e.city, e.status, e.organizer_id
		FROM reservations r
		JOIN events e ON e.id = r.event_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + order + `
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ReservationDetail{}
	for rows.Next() {
		var d ReservationDetail
		dest := append(reservationDest(&d.Reservation),
			&d.EventTitle, &d.EventStartsAt, &d.EventVenue, &d.EventCity, &d.EventStatus, &d.EventOrganizer)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
