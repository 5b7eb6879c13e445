package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeoutMS = 5000
	defaultMaxOpenConns  = 5
	pingTimeout          = 5 * time.Second
)

// Options configures the SQLite click database.
type Options struct {
	Path          string
	EnableWAL     bool
	BusyTimeoutMS int
	MaxOpenConns  int
	MaxIdleConns  int
}

func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		EnableWAL:     true,
		BusyTimeoutMS: defaultBusyTimeoutMS,
		MaxOpenConns:  defaultMaxOpenConns,
		MaxIdleConns:  defaultMaxOpenConns,
	}
}

func (o Options) withDefaults() Options {
	if o.BusyTimeoutMS <= 0 {
		o.BusyTimeoutMS = defaultBusyTimeoutMS
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = defaultMaxOpenConns
	}
	if o.MaxIdleConns < 0 {
		o.MaxIdleConns = 0
	}
	o.Path = filepath.Clean(o.Path)
	return o
}

// dsn sets the pragmas on every pooled connection. synchronous=FULL syncs
// every commit in both journal modes: a seq handed to a client must survive a
// power loss, or the next press would be given the same number.
func (o Options) dsn() string {
	pragmas := []string{
		fmt.Sprintf("_pragma=busy_timeout(%d)", o.BusyTimeoutMS),
		"_pragma=synchronous(FULL)",
	}
	if o.EnableWAL {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return fmt.Sprintf("file:%s?%s", o.Path, strings.Join(pragmas, "&"))
}

// Open opens and pings the click database. Migrations are left to the caller.
func Open(opts Options) (*sql.DB, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	opts = opts.withDefaults()

	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", opts.Path, err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", opts.Path, err)
	}
	return db, nil
}

func JournalMode(ctx context.Context, db *sql.DB) (string, error) {
	var mode string
	if err := pragma(ctx, db, "journal_mode", &mode); err != nil {
		return "", err
	}
	return strings.ToLower(mode), nil
}

func BusyTimeout(ctx context.Context, db *sql.DB) (int, error) {
	var ms int
	err := pragma(ctx, db, "busy_timeout", &ms)
	return ms, err
}

// Synchronous returns the numeric synchronous level (1 NORMAL, 2 FULL).
func Synchronous(ctx context.Context, db *sql.DB) (int, error) {
	var level int
	err := pragma(ctx, db, "synchronous", &level)
	return level, err
}

func pragma(ctx context.Context, db *sql.DB, name string, dest any) error {
	if err := db.QueryRowContext(ctx, "PRAGMA "+name+";").Scan(dest); err != nil {
		return fmt.Errorf("query %s pragma: %w", name, err)
	}
	return nil
}
