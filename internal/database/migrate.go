package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates the tables for d when they do not exist yet. Statements
// are executed one at a time because the MySQL driver rejects multi
// statement strings unless explicitly enabled.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	var file string
	switch d {
	case MySQL:
		file = "schema/mysql.sql"
	case SQLite:
		file = "schema/sqlite.sql"
	default:
		return fmt.Errorf("migrate: unknown dialect %q", d)
	}
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", file, err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
