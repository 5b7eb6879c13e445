// Package pgstore is the PostgreSQL event store. Writers serialize on an
// EXCLUSIVE table lock on clicks, which still admits plain readers.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/benedict2310/tally/internal/eventstore"
)

const (
	DefaultLockTimeout = 5 * time.Second

	// lock_not_available
	sqlStateLockNotAvailable = "55P03"
)

type Options struct {
	URL          string
	LockTimeout  time.Duration
	MaxOpenConns int
	Logger       *slog.Logger
}

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ eventstore.Store = (*Store)(nil)

// Open connects through the pgx database/sql driver, pings and migrates.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("pgx", opts.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db, opts), nil
}

func New(db *sql.DB, opts Options) *Store {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{db: db, lockTimeout: opts.LockTimeout, logger: opts.Logger}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context, tx eventstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventstore.Wrap("begin exclusive section", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Error("rollback exclusive section failed", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = '%dms'`, s.lockTimeout.Milliseconds())); err != nil {
		return eventstore.Wrap("set lock timeout", err)
	}
	if _, err := tx.ExecContext(ctx, `LOCK TABLE clicks IN EXCLUSIVE MODE`); err != nil {
		if isLockTimeout(err) {
			return eventstore.TimeoutError("lock clicks", err)
		}
		return eventstore.Wrap("lock clicks", err)
	}

	if err := fn(ctx, &storeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return eventstore.Wrap("commit exclusive section", err)
	}
	committed = true
	return nil
}

func (s *Store) Aggregate(ctx context.Context, scope eventstore.Scope) ([]eventstore.AggregateRow, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	switch scope.Kind {
	case eventstore.ScopeAllTime:
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clicks`).Scan(&n); err != nil {
			return nil, eventstore.Wrap("aggregate all-time", err)
		}
		return []eventstore.AggregateRow{{Count: n}}, nil
	case eventstore.ScopeButtons:
		rows, err := s.db.QueryContext(ctx, `SELECT button_id, COUNT(*) FROM clicks GROUP BY button_id ORDER BY button_id`)
		if err != nil {
			return nil, eventstore.Wrap("aggregate buttons", err)
		}
		defer rows.Close()
		out := []eventstore.AggregateRow{}
		for rows.Next() {
			var r eventstore.AggregateRow
			if err := rows.Scan(&r.ButtonID, &r.Count); err != nil {
				return nil, eventstore.Wrap("aggregate buttons", err)
			}
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return nil, eventstore.Wrap("aggregate buttons", err)
		}
		return out, nil
	default:
		from, to, err := scope.Window()
		if err != nil {
			return nil, err
		}
		recs, err := listCandidates(ctx, s.db, nil, from, to)
		if err != nil {
			return nil, eventstore.Wrap("aggregate "+scope.Kind.String(), err)
		}
		return eventstore.Tally(scope, recs)
	}
}

func (s *Store) ButtonLabel(ctx context.Context, buttonID int) (string, error) {
	b, err := s.GetButton(ctx, buttonID)
	if err != nil {
		return "", err
	}
	return b.Label, nil
}

func (s *Store) GetButton(ctx context.Context, buttonID int) (eventstore.ButtonConfig, error) {
	var (
		out       eventstore.ButtonConfig
		updatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `SELECT button_id, label, icon_ref, updated_at FROM buttons WHERE button_id = $1`, buttonID).
		Scan(&out.ButtonID, &out.Label, &out.IconRef, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return out, fmt.Errorf("button %d: %w", buttonID, eventstore.ErrNotFound)
		}
		return out, eventstore.Wrap("get button", err)
	}
	out.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return out, nil
}

func (s *Store) ListButtons(ctx context.Context) ([]eventstore.ButtonConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT button_id, label, icon_ref, updated_at FROM buttons ORDER BY button_id`)
	if err != nil {
		return nil, eventstore.Wrap("list buttons", err)
	}
	defer rows.Close()

	out := []eventstore.ButtonConfig{}
	for rows.Next() {
		var (
			b         eventstore.ButtonConfig
			updatedAt time.Time
		)
		if err := rows.Scan(&b.ButtonID, &b.Label, &b.IconRef, &updatedAt); err != nil {
			return nil, eventstore.Wrap("list buttons", err)
		}
		b.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eventstore.Wrap("list buttons", err)
	}
	return out, nil
}

func (s *Store) SeedButtons(ctx context.Context, ids []int) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO buttons(button_id, label) VALUES($1, $2) ON CONFLICT (button_id) DO NOTHING`, id, eventstore.DefaultLabel(id)); err != nil {
			return eventstore.Wrap(fmt.Sprintf("seed button %d", id), err)
		}
	}
	return nil
}

func (s *Store) SetButtonLabel(ctx context.Context, buttonID int, label string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO buttons(button_id, label)
VALUES($1, $2)
ON CONFLICT (button_id) DO UPDATE SET
  label = EXCLUDED.label,
  updated_at = now()
`, buttonID, label)
	return eventstore.Wrap("set button label", err)
}

func (s *Store) SetButtonIcon(ctx context.Context, buttonID int, iconRef *string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE buttons SET icon_ref = $1, updated_at = now() WHERE button_id = $2`, iconRef, buttonID)
	if err != nil {
		return eventstore.Wrap("set button icon", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eventstore.Wrap("set button icon", err)
	}
	if n == 0 {
		return fmt.Errorf("button %d: %w", buttonID, eventstore.ErrNotFound)
	}
	return nil
}

type queryer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type storeTx struct {
	tx queryer
}

func (t *storeTx) CountMatching(ctx context.Context, buttonID int, day string) (int, error) {
	recs, err := listCandidates(ctx, t.tx, &buttonID, day, day)
	if err != nil {
		return 0, eventstore.Wrap("count matching clicks", err)
	}
	return eventstore.CountMatching(recs, buttonID, day), nil
}

func (t *storeTx) Append(ctx context.Context, e eventstore.Event) (eventstore.Event, error) {
	id, err := t.AppendRecord(ctx, eventstore.RecordFromEvent(e))
	if err != nil {
		return eventstore.Event{}, err
	}
	e.ID = id
	return e, nil
}

func (t *storeTx) AppendRecord(ctx context.Context, rec eventstore.Record) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
INSERT INTO clicks(button_id, button_label, seq, date_iso, date, date_display, time, ts)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		rec.ButtonID, rec.ButtonLabel, rec.Seq,
		optional(rec.DateISO), optional(rec.Date), optional(rec.DateDisplay), optional(rec.Time), optional(rec.Timestamp),
	).Scan(&id)
	if err != nil {
		return 0, eventstore.Wrap("append click", err)
	}
	return id, nil
}

func (s *Store) ListDay(ctx context.Context, day string) ([]eventstore.Record, error) {
	recs, err := listCandidates(ctx, s.db, nil, day, day)
	if err != nil {
		return nil, eventstore.Wrap("list day clicks", err)
	}
	return eventstore.FilterDay(recs, day), nil
}

func (s *Store) Last(ctx context.Context) (eventstore.Record, error) {
	var r eventstore.Record
	var dateISO, date, dateDisplay, timeOfDay, ts sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, button_id, button_label, seq, date_iso, date::text, date_display, time::text, ts
FROM clicks ORDER BY id DESC LIMIT 1`).
		Scan(&r.ID, &r.ButtonID, &r.ButtonLabel, &r.Seq, &dateISO, &date, &dateDisplay, &timeOfDay, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstore.Record{}, fmt.Errorf("last click: %w", eventstore.ErrNotFound)
	}
	if err != nil {
		return eventstore.Record{}, eventstore.Wrap("last click", err)
	}
	r.DateISO = dateISO.String
	r.Date = date.String
	r.DateDisplay = dateDisplay.String
	r.Time = timeOfDay.String
	r.Timestamp = ts.String
	return r, nil
}

const candidatesSQL = `SELECT id, button_id, button_label, seq, date_iso, date::text, date_display, time::text, ts
FROM clicks
WHERE ($1::integer IS NULL OR button_id = $1)
  AND (
    substr(btrim(date_iso), 1, 10) BETWEEN $2 AND $3
    OR substr(date::text, 1, 10) BETWEEN $2 AND $3
    OR substr(btrim(ts), 1, 10) BETWEEN $2 AND $3
  )
ORDER BY id`

// listCandidates over-selects rows whose date columns could fall inside
// [from, to]; the normalization in eventstore makes the final call.
func listCandidates(ctx context.Context, q queryer, buttonID *int, from, to string) ([]eventstore.Record, error) {
	rows, err := q.QueryContext(ctx, candidatesSQL, buttonID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list click candidates: %w", err)
	}
	defer rows.Close()

	out := []eventstore.Record{}
	for rows.Next() {
		var r eventstore.Record
		var dateISO, date, dateDisplay, timeOfDay, ts sql.NullString
		if err := rows.Scan(&r.ID, &r.ButtonID, &r.ButtonLabel, &r.Seq, &dateISO, &date, &dateDisplay, &timeOfDay, &ts); err != nil {
			return nil, fmt.Errorf("scan click row: %w", err)
		}
		r.DateISO = dateISO.String
		r.Date = date.String
		r.DateDisplay = dateDisplay.String
		r.Time = timeOfDay.String
		r.Timestamp = ts.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate click rows: %w", err)
	}
	return out, nil
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateLockNotAvailable
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
