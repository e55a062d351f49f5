// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow the service layer to tell a
// missing row from a broken query without looking at driver errors.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a user is created with an e-mail that
// is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrDuplicateCode is returned when a reservation is inserted with a code
// another reservation already holds.
var ErrDuplicateCode = errors.New("reservation code already exists")

// dbtx is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isDuplicate reports whether err is a unique-key violation from either
// supported driver.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// dbTime normalizes a timestamp before it is written or compared in SQL.
// Both drivers store second precision in UTC, which keeps SQLite's text
// comparison consistent with MySQL's DATETIME ordering.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
