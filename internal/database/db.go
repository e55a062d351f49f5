package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect names the SQL flavour behind a *sql.DB. Repositories use it for
// the few statements that differ between MySQL and SQLite.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite3"
)

// LockSuffix is appended to a SELECT that must lock the rows it reads
// until the surrounding transaction ends. SQLite has no row locks; its
// write transactions are opened IMMEDIATE (see OpenSQLite) so writers
// already run one at a time.
func (d Dialect) LockSuffix() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)
	return OpenMySQL(dsn)
}

// OpenMySQL connects with a complete DSN. The DSN must set parseTime=true
// and loc=UTC like the one built by Open.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open(string(MySQL), dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, ping(db)
}

// OpenSQLite opens (creating if needed) the SQLite database at path.
// Transactions begin IMMEDIATE so the event lock taken at the start of a
// booking serializes concurrent writers; readers keep going under WAL.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL&_foreign_keys=1", path)
	db, err := sql.Open(string(SQLite), dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(8)
	return db, ping(db)
}

func ping(db *sql.DB) error {
	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	return nil
}
