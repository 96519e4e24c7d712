// Package migrate applies the embedded Postgres schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed sql/*.up.sql
var files embed.FS

const migrationsTable = "schema_migrations"

// Up applies every pending migration in name order, each in its own
// transaction.
func Up(ctx context.Context, db *sql.DB) ([]string, error) {
	if _, err := db.ExecContext(ctx, `
create table if not exists `+migrationsTable+` (
  name text primary key,
  applied_at timestamptz not null default now()
)`); err != nil {
		return nil, fmt.Errorf("ensure migrations table: %w", err)
	}

	executed := map[string]bool{}
	rows, err := db.QueryContext(ctx, `select name from `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		executed[name] = true
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	names, err := Pending(executed)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := apply(ctx, db, name); err != nil {
			return nil, fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return names, nil
}

// Pending lists embedded migrations not in executed, sorted by name.
func Pending(executed map[string]bool) ([]string, error) {
	all, err := fs.Glob(files, "sql/*.up.sql")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range all {
		name := strings.TrimPrefix(p, "sql/")
		if !executed[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func apply(ctx context.Context, db *sql.DB, name string) error {
	body, err := files.ReadFile("sql/" + name)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `insert into `+migrationsTable+`(name, applied_at) values ($1, $2)`, name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func splitStatements(body string) []string {
	var out []string
	for _, s := range strings.Split(body, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
