package migrations_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	dbpkg "github.com/benedict2310/tally/internal/db"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := dbpkg.Open(dbpkg.DefaultOptions(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := dbpkg.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

func tableColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		t.Fatalf("PRAGMA table_info(%s) error = %v", table, err)
	}
	defer rows.Close()

	columns := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			defaultV   *string
			pk         int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &defaultV, &pk); err != nil {
			t.Fatalf("scan pragma row: %v", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate pragma rows: %v", err)
	}
	return columns
}

func TestClicksTableCarriesEveryGenerationColumn(t *testing.T) {
	db := openMigrated(t)

	columns := tableColumns(t, db, "clicks")
	for _, name := range []string{"id", "button_id", "seq", "date", "time", "date_display", "ts", "date_iso", "button_label"} {
		if !columns[name] {
			t.Fatalf("expected clicks.%s column", name)
		}
	}

	for _, index := range []string{"idx_clicks_date", "idx_clicks_button_date_iso", "idx_clicks_ts"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
		if err != nil {
			t.Fatalf("lookup index %s: %v", index, err)
		}
	}
}

func TestButtonsTableSchema(t *testing.T) {
	db := openMigrated(t)

	columns := tableColumns(t, db, "buttons")
	for _, name := range []string{"button_id", "label", "icon_ref", "created_at", "updated_at"} {
		if !columns[name] {
			t.Fatalf("expected buttons.%s column", name)
		}
	}
}

func TestLegacyRowsSurviveLaterMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sqlite")
	db, err := dbpkg.Open(dbpkg.DefaultOptions(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := dbpkg.RunMigrationsTo(ctx, db, 1); err != nil {
		t.Fatalf("RunMigrationsTo(1) error = %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO clicks(button_id, seq, date, time) VALUES(1, 1, '2024-03-05', '14:22')`); err != nil {
		t.Fatalf("insert first-generation row: %v", err)
	}

	if err := dbpkg.RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	var label string
	var dateISO, ts *string
	if err := db.QueryRowContext(ctx, `SELECT button_label, date_iso, ts FROM clicks WHERE seq = 1`).Scan(&label, &dateISO, &ts); err != nil {
		t.Fatalf("read migrated row: %v", err)
	}
	if label != "" || dateISO != nil || ts != nil {
		t.Fatalf("unexpected backfill on legacy row: label=%q date_iso=%v ts=%v", label, dateISO, ts)
	}
}
