package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/benedict2310/tally/internal/eventstore"
)

const DefaultLockTimeout = 5 * time.Second

type StoreOptions struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Store is the SQLite event store. Writers are serialized by an in-process
// semaphore and by BEGIN IMMEDIATE, which also excludes other processes that
// open the same database file.
type Store struct {
	db          *sql.DB
	sem         *semaphore.Weighted
	lockTimeout time.Duration
	logger      *slog.Logger
}

var _ eventstore.Store = (*Store)(nil)

func NewStore(db *sql.DB, opts StoreOptions) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		db:          db,
		sem:         semaphore.NewWeighted(1),
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger,
	}, nil
}

// OpenStore opens the database at opts.Path, applies migrations and returns a
// store bound to it. The SQLite busy timeout follows the lock timeout.
func OpenStore(ctx context.Context, opts Options, storeOpts StoreOptions) (*Store, error) {
	if storeOpts.LockTimeout <= 0 {
		storeOpts.LockTimeout = DefaultLockTimeout
	}
	opts.BusyTimeoutMS = int(storeOpts.LockTimeout / time.Millisecond)
	db, err := Open(opts)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s, err := NewStore(db, storeOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if v, err := SchemaVersion(ctx, db); err == nil {
		s.logger.Debug("click store ready", "path", opts.Path, "schema_version", v, "wal", opts.EnableWAL)
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context, tx eventstore.Tx) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	if err := s.sem.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() == nil {
			return eventstore.TimeoutError("acquire exclusive section", nil)
		}
		return eventstore.Wrap("acquire exclusive section", err)
	}
	defer s.sem.Release(1)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return eventstore.Wrap("acquire connection", err)
	}
	defer conn.Close()

	if err := s.begin(ctx, lockCtx, conn); err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if _, err := conn.ExecContext(context.Background(), `ROLLBACK`); err != nil {
			s.logger.Error("rollback exclusive section failed", "error", err)
			// Never hand a connection with an open transaction back to the pool.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	if err := fn(ctx, &storeTx{q: NewQueries(conn)}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		if isBusy(err) {
			return eventstore.TimeoutError("commit exclusive section", err)
		}
		return eventstore.Wrap("commit exclusive section", err)
	}
	committed = true
	return nil
}

func (s *Store) begin(ctx, lockCtx context.Context, conn *sql.Conn) error {
	wait := s.lockTimeout
	if deadline, ok := lockCtx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait < time.Millisecond {
		return eventstore.TimeoutError("begin exclusive section", nil)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`PRAGMA busy_timeout = %d`, wait.Milliseconds())); err != nil {
		return eventstore.Wrap("set busy timeout", err)
	}
	if _, err := conn.ExecContext(lockCtx, `BEGIN IMMEDIATE`); err != nil {
		if isBusy(err) || (lockCtx.Err() != nil && ctx.Err() == nil) {
			return eventstore.TimeoutError("begin exclusive section", err)
		}
		return eventstore.Wrap("begin exclusive section", err)
	}
	return nil
}

func (s *Store) Aggregate(ctx context.Context, scope eventstore.Scope) ([]eventstore.AggregateRow, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	q := NewQueries(s.db)

	switch scope.Kind {
	case eventstore.ScopeAllTime:
		n, err := q.CountClicks(ctx)
		if err != nil {
			return nil, eventstore.Wrap("aggregate all-time", err)
		}
		return []eventstore.AggregateRow{{Count: n}}, nil
	case eventstore.ScopeButtons:
		counts, err := q.CountClicksByButton(ctx)
		if err != nil {
			return nil, eventstore.Wrap("aggregate buttons", err)
		}
		out := make([]eventstore.AggregateRow, 0, len(counts))
		for id, n := range counts {
			out = append(out, eventstore.AggregateRow{ButtonID: id, Count: n})
		}
		eventstore.SortByButton(out)
		return out, nil
	default:
		from, to, err := scope.Window()
		if err != nil {
			return nil, err
		}
		rows, err := q.ListClickCandidates(ctx, ClickFilter{From: from, To: to})
		if err != nil {
			return nil, eventstore.Wrap("aggregate "+scope.Kind.String(), err)
		}
		return eventstore.Tally(scope, recordsFromRows(rows))
	}
}

func (s *Store) ListDay(ctx context.Context, day string) ([]eventstore.Record, error) {
	rows, err := NewQueries(s.db).ListClickCandidates(ctx, ClickFilter{From: day, To: day})
	if err != nil {
		return nil, eventstore.Wrap("list day clicks", err)
	}
	return eventstore.FilterDay(recordsFromRows(rows), day), nil
}

func (s *Store) Last(ctx context.Context) (eventstore.Record, error) {
	row, err := NewQueries(s.db).LastClick(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return eventstore.Record{}, fmt.Errorf("last click: %w", eventstore.ErrNotFound)
	}
	if err != nil {
		return eventstore.Record{}, eventstore.Wrap("last click", err)
	}
	return recordsFromRows([]ClickRow{row})[0], nil
}

func (s *Store) ButtonLabel(ctx context.Context, buttonID int) (string, error) {
	b, err := s.GetButton(ctx, buttonID)
	if err != nil {
		return "", err
	}
	return b.Label, nil
}

func (s *Store) GetButton(ctx context.Context, buttonID int) (eventstore.ButtonConfig, error) {
	row, err := NewQueries(s.db).GetButton(ctx, buttonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return eventstore.ButtonConfig{}, fmt.Errorf("button %d: %w", buttonID, eventstore.ErrNotFound)
		}
		return eventstore.ButtonConfig{}, eventstore.Wrap("get button", err)
	}
	return buttonConfigFromRow(row), nil
}

func (s *Store) ListButtons(ctx context.Context) ([]eventstore.ButtonConfig, error) {
	rows, err := NewQueries(s.db).ListButtons(ctx)
	if err != nil {
		return nil, eventstore.Wrap("list buttons", err)
	}
	out := make([]eventstore.ButtonConfig, 0, len(rows))
	for _, row := range rows {
		out = append(out, buttonConfigFromRow(row))
	}
	return out, nil
}

func (s *Store) SeedButtons(ctx context.Context, ids []int) error {
	return eventstore.Wrap("seed buttons", NewQueries(s.db).SeedButtons(ctx, ids))
}

func (s *Store) SetButtonLabel(ctx context.Context, buttonID int, label string) error {
	return eventstore.Wrap("set button label", NewQueries(s.db).UpsertButtonLabel(ctx, buttonID, label))
}

func (s *Store) SetButtonIcon(ctx context.Context, buttonID int, iconRef *string) error {
	ok, err := NewQueries(s.db).UpdateButtonIcon(ctx, buttonID, iconRef)
	if err != nil {
		return eventstore.Wrap("set button icon", err)
	}
	if !ok {
		return fmt.Errorf("button %d: %w", buttonID, eventstore.ErrNotFound)
	}
	return nil
}

type storeTx struct {
	q *Queries
}

func (t *storeTx) CountMatching(ctx context.Context, buttonID int, day string) (int, error) {
	rows, err := t.q.ListClickCandidates(ctx, ClickFilter{ButtonID: &buttonID, From: day, To: day})
	if err != nil {
		return 0, eventstore.Wrap("count matching clicks", err)
	}
	return eventstore.CountMatching(recordsFromRows(rows), buttonID, day), nil
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
	id, err := t.q.InsertClick(ctx, rowFromRecord(rec))
	if err != nil {
		return 0, eventstore.Wrap("append click", err)
	}
	return id, nil
}

func recordsFromRows(rows []ClickRow) []eventstore.Record {
	out := make([]eventstore.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventstore.Record{
			ID:          row.ID,
			ButtonID:    row.ButtonID,
			ButtonLabel: row.ButtonLabel,
			Seq:         row.Seq,
			DateISO:     deref(row.DateISO),
			Date:        deref(row.Date),
			DateDisplay: deref(row.DateDisplay),
			Time:        deref(row.Time),
			Timestamp:   deref(row.Timestamp),
		})
	}
	return out
}

func rowFromRecord(rec eventstore.Record) ClickRow {
	return ClickRow{
		ButtonID:    rec.ButtonID,
		ButtonLabel: rec.ButtonLabel,
		Seq:         rec.Seq,
		DateISO:     optional(rec.DateISO),
		Date:        optional(rec.Date),
		DateDisplay: optional(rec.DateDisplay),
		Time:        optional(rec.Time),
		Timestamp:   optional(rec.Timestamp),
	}
}

func buttonConfigFromRow(row ButtonRow) eventstore.ButtonConfig {
	return eventstore.ButtonConfig{
		ButtonID:  row.ButtonID,
		Label:     row.Label,
		IconRef:   row.IconRef,
		UpdatedAt: row.UpdatedAt,
	}
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
