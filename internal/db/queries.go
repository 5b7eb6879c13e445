package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type queryer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db queryer
}

// date and time are declared DATE/TIME by the first generation; casting keeps
// the driver from converting them and hands normalization the raw text.
const clickColumns = `id, button_id, button_label, seq, date_iso, CAST(date AS TEXT), date_display, CAST(time AS TEXT), ts`

func NewQueries(db queryer) *Queries {
	return &Queries{db: db}
}

func (q *Queries) InsertClick(ctx context.Context, in ClickRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO clicks(button_id, button_label, seq, date_iso, date, date_display, time, ts) VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ButtonID, in.ButtonLabel, in.Seq, in.DateISO, in.Date, in.DateDisplay, in.Time, in.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("insert click: %w", err)
	}
	return lastInsertID("insert click", res)
}

// ListClickCandidates returns every row that could normalize into the filter
// window. It over-selects; callers decide with the Go normalization.
func (q *Queries) ListClickCandidates(ctx context.Context, f ClickFilter) ([]ClickRow, error) {
	var (
		where []string
		args  []any
	)
	if f.ButtonID != nil {
		where = append(where, "button_id = ?")
		args = append(args, *f.ButtonID)
	}
	if f.From != "" || f.To != "" {
		from, to := f.From, f.To
		if from == "" {
			from = "0000-00-00"
		}
		if to == "" {
			to = "9999-99-99"
		}
		where = append(where, `(
  substr(trim(date_iso), 1, 10) BETWEEN ? AND ?
  OR substr(trim(CAST(date AS TEXT)), 1, 10) BETWEEN ? AND ?
  OR substr(trim(ts), 1, 10) BETWEEN ? AND ?
)`)
		args = append(args, from, to, from, to, from, to)
	}

	query := `SELECT ` + clickColumns + ` FROM clicks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list click candidates: %w", err)
	}
	defer rows.Close()

	out := []ClickRow{}
	for rows.Next() {
		var row ClickRow
		if err := rows.Scan(&row.ID, &row.ButtonID, &row.ButtonLabel, &row.Seq, &row.DateISO, &row.Date, &row.DateDisplay, &row.Time, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan click row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate click rows: %w", err)
	}
	return out, nil
}

// LastClick returns the most recently inserted row or sql.ErrNoRows.
func (q *Queries) LastClick(ctx context.Context) (ClickRow, error) {
	var row ClickRow
	err := q.db.QueryRowContext(ctx, `SELECT `+clickColumns+` FROM clicks ORDER BY id DESC LIMIT 1`).
		Scan(&row.ID, &row.ButtonID, &row.ButtonLabel, &row.Seq, &row.DateISO, &row.Date, &row.DateDisplay, &row.Time, &row.Timestamp)
	if err != nil {
		return ClickRow{}, err
	}
	return row, nil
}

func (q *Queries) CountClicks(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clicks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return n, nil
}

func (q *Queries) CountClicksByButton(ctx context.Context) (map[int]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT button_id, COUNT(*) FROM clicks GROUP BY button_id ORDER BY button_id`)
	if err != nil {
		return nil, fmt.Errorf("count clicks by button: %w", err)
	}
	defer rows.Close()

	out := map[int]int{}
	for rows.Next() {
		var id, n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan click count: %w", err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate click counts: %w", err)
	}
	return out, nil
}

// SeedButtons inserts a default-labelled row for every id that has none.
// Existing rows are left untouched.
func (q *Queries) SeedButtons(ctx context.Context, ids []int) error {
	for _, id := range ids {
		if _, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO buttons(button_id, label) VALUES(?, ?)`, id, fmt.Sprintf("Button %d", id)); err != nil {
			return fmt.Errorf("seed button %d: %w", id, err)
		}
	}
	return nil
}

func (q *Queries) GetButton(ctx context.Context, buttonID int) (ButtonRow, error) {
	var out ButtonRow
	err := q.db.QueryRowContext(ctx, `SELECT button_id, label, icon_ref, created_at, updated_at FROM buttons WHERE button_id = ?`, buttonID).
		Scan(&out.ButtonID, &out.Label, &out.IconRef, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return out, fmt.Errorf("get button %d: %w", buttonID, err)
	}
	return out, nil
}

func (q *Queries) ListButtons(ctx context.Context) ([]ButtonRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT button_id, label, icon_ref, created_at, updated_at FROM buttons ORDER BY button_id`)
	if err != nil {
		return nil, fmt.Errorf("list buttons: %w", err)
	}
	defer rows.Close()

	out := []ButtonRow{}
	for rows.Next() {
		var row ButtonRow
		if err := rows.Scan(&row.ButtonID, &row.Label, &row.IconRef, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan button row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate button rows: %w", err)
	}
	return out, nil
}

func (q *Queries) UpsertButtonLabel(ctx context.Context, buttonID int, label string) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO buttons(button_id, label)
VALUES(?, ?)
ON CONFLICT(button_id) DO UPDATE SET
  label=excluded.label,
  updated_at=strftime('%Y-%m-%dT%H:%M:%fZ','now')
`, buttonID, label)
	if err != nil {
		return fmt.Errorf("upsert button label: %w", err)
	}
	return nil
}

// UpdateButtonIcon sets or clears the icon reference. It reports false when no
// button row exists.
func (q *Queries) UpdateButtonIcon(ctx context.Context, buttonID int, iconRef *string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE buttons SET icon_ref = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE button_id = ?`, iconRef, buttonID)
	if err != nil {
		return false, fmt.Errorf("update button icon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update button icon rows affected: %w", err)
	}
	return n > 0, nil
}

func lastInsertID(op string, res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s last insert id: %w", op, err)
	}
	return id, nil
}
