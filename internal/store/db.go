// Package store persists messages and notifications in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bhandras/bazaar/pkg/logger"
)

//go:embed migrations
var migrationFS embed.FS

// ErrNotFound is returned when a row addressed by id does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("not found")

// Dialect names the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a *sql.DB with the dialect it speaks.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to dsn and runs migrations. A postgres:// or postgresql://
// URL selects Postgres; anything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect, driver, source := parseDSN(dsn)

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// SQLite serializes writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{DB: db, dialect: dialect}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return d, nil
}

// Dialect reports the backend in use.
func (db *DB) Dialect() Dialect { return db.dialect }

func parseDSN(dsn string) (Dialect, string, string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres, "postgres", dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return DialectSQLite, "sqlite3", dsn + sep + "_foreign_keys=on"
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.QueryContext(ctx, db.rebind(query), args...)
}

// migrate applies every embedded migration for the dialect that has not been
// recorded in schema_migrations, in file name order.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	dir := path.Join("migrations", string(db.dialect))
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version := strings.TrimSuffix(e.Name(), ".sql")

		var count int
		err := db.QueryRowContext(ctx,
			db.rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if count > 0 {
			continue
		}

		body, err := fs.ReadFile(migrationFS, path.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", version, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
		if _, err := db.exec(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		logger.Infof("store: applied migration %s", version)
	}
	return nil
}
