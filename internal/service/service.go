// Package service holds the reservation engine and the event lifecycle.
// Every operation that changes an event or its reservations runs in one
// database transaction that starts by locking the event row; capacity is
// always checked and written under that lock.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/event-reservation/internal/clock"
	"github.com/iliyamo/event-reservation/internal/code"
	"github.com/iliyamo/event-reservation/internal/model"
	"github.com/iliyamo/event-reservation/internal/queue"
	"github.com/iliyamo/event-reservation/internal/repository"
)

// Rules are the tunable business constants.
type Rules struct {
	MaxSeatsPerReservation int
	CancellationCutoff     time.Duration
	MaxNoteLength          int
}

// DefaultRules returns the production defaults.
func DefaultRules() Rules {
	return Rules{
		MaxSeatsPerReservation: 10,
		CancellationCutoff:     48 * time.Hour,
		MaxNoteLength:          500,
	}
}

// Deps bundles what the services need. DB and the repositories are
// required; the rest fall back to defaults.
type Deps struct {
	DB           *sql.DB
	Events       *repository.EventRepo
	Reservations *repository.ReservationRepo
	Users        *repository.UserRepo
	Codes        *code.Generator
	Clock        clock.Clock
	Publisher    queue.Publisher
	Logger       *slog.Logger
	Rules        Rules
}

func (d Deps) withDefaults(component string) Deps {
	if d.DB == nil || d.Events == nil || d.Reservations == nil || d.Users == nil {
		panic("nil dependency passed to " + component)
	}
	if d.Codes == nil {
		d.Codes = code.New("EVT-", 5, 100)
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Publisher == nil {
		d.Publisher = queue.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", component)
	if d.Rules == (Rules{}) {
		d.Rules = DefaultRules()
	}
	return d
}

// txBeginner is satisfied by *sql.DB.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// lockTxOptions runs every unit of work at READ COMMITTED. Reads issued
// after the event row lock is granted must see what the previous holder
// committed; under MySQL's default REPEATABLE READ they would keep
// returning the snapshot taken at the first read of the transaction.
// SQLite ignores the level and serializes writers with BEGIN IMMEDIATE.
var lockTxOptions = sql.TxOptions{Isolation: sql.LevelReadCommitted}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func withTx(ctx context.Context, db txBeginner, fn func(tx *sql.Tx) error) error {
	opts := lockTxOptions
	tx, err := db.BeginTx(ctx, &opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// publish hands msg to the publisher after a commit. Failures are logged
// and never reach the caller.
func (d Deps) publish(ctx context.Context, msg queue.ReservationMessage) {
	msg.OccurredAt = d.Clock.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Publisher.Publish(ctx, msg); err != nil {
		d.Logger.Warn("publish failed", "type", msg.Type, "event_id", msg.EventID, "err", err)
	}
}

func reservationMessage(typ string, r *model.Reservation, e *model.Event, actorID uint64) queue.ReservationMessage {
	return queue.ReservationMessage{
		Type:             typ,
		ReservationID:    r.ID,
		Code:             r.Code,
		UserID:           r.UserID,
		EventID:          e.ID,
		EventTitle:       e.Title,
		StartsAt:         e.StartsAt,
		Seats:            r.Seats,
		TotalAmountCents: r.TotalAmountCents,
		Status:           string(r.Status),
		ActorID:          actorID,
	}
}

// canManage reports whether actor may change e: its organizer or an admin.
func canManage(actor *model.User, e *model.Event) bool {
	return actor.Role == model.RoleAdmin || actor.ID == e.OrganizerID
}

// canActOn reports whether actor may act on r: the user who made it, the
// organizer of its event, or an admin.
func canActOn(actor *model.User, r *model.Reservation, e *model.Event) bool {
	return actor.ID == r.UserID || canManage(actor, e)
}
