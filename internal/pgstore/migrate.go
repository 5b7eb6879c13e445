package pgstore

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	Version    int
	Name       string
	Statements []string
}

// migrations mirror the SQLite schema history so both backends hold the same
// generations of click rows.
var migrations = []migration{
	{
		Version: 1,
		Name:    "clicks",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS clicks (
    id BIGSERIAL PRIMARY KEY,
    button_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    date DATE NULL,
    time TIME NULL
)`,
			`CREATE INDEX IF NOT EXISTS idx_clicks_date ON clicks(date)`,
		},
	},
	{
		Version: 2,
		Name:    "clicks_imported_text_fields",
		Statements: []string{
			`ALTER TABLE clicks ADD COLUMN IF NOT EXISTS date_display TEXT NULL`,
			`ALTER TABLE clicks ADD COLUMN IF NOT EXISTS ts TEXT NULL`,
		},
	},
	{
		Version: 3,
		Name:    "clicks_calendar_day",
		Statements: []string{
			`ALTER TABLE clicks ADD COLUMN IF NOT EXISTS date_iso TEXT NULL`,
			`ALTER TABLE clicks ADD COLUMN IF NOT EXISTS button_label TEXT NOT NULL DEFAULT ''`,
			`CREATE INDEX IF NOT EXISTS idx_clicks_button_date_iso ON clicks(button_id, date_iso)`,
			`CREATE INDEX IF NOT EXISTS idx_clicks_ts ON clicks(ts)`,
		},
	},
	{
		Version: 4,
		Name:    "buttons",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS buttons (
    button_id INTEGER PRIMARY KEY,
    label TEXT NOT NULL,
    icon_ref TEXT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		},
	},
}

const schemaMigrationsSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func Migrate(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database is nil")
	}
	if _, err := db.ExecContext(ctx, schemaMigrationsSQL); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, m.Version, m.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d (%s): %w", m.Version, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		out[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return out, nil
}
