// Package eventstore defines the click event model, the normalization of the
// date/time representations written by every schema generation, and the
// persistence contract shared by the SQLite and PostgreSQL stores.
package eventstore

import (
	"context"
	"errors"
	"time"
)

const (
	DayLayout       = "2006-01-02"
	TimeLayout      = "15:04"
	TimestampLayout = "2006-01-02T15:04:05-07:00"
)

var ErrNotFound = errors.New("not found")

// Event is a click as written by the current generation.
type Event struct {
	ID          int64
	ButtonID    int
	ButtonLabel string
	Seq         int
	Day         string
	OccurredAt  time.Time
}

// Record is the stored shape of a click row. Every date/time field is optional
// text; rows from older generations carry only some of them.
type Record struct {
	ID          int64
	ButtonID    int
	ButtonLabel string
	Seq         int
	DateISO     string
	Date        string
	DateDisplay string
	Time        string
	Timestamp   string
}

// RecordFromEvent returns the row written for e: explicit day, combined
// timestamp in the event's own offset, and the HH:MM time of day.
func RecordFromEvent(e Event) Record {
	return Record{
		ID:          e.ID,
		ButtonID:    e.ButtonID,
		ButtonLabel: e.ButtonLabel,
		Seq:         e.Seq,
		DateISO:     e.Day,
		Time:        e.OccurredAt.Format(TimeLayout),
		Timestamp:   e.OccurredAt.Format(TimestampLayout),
	}
}

type ButtonConfig struct {
	ButtonID  int
	Label     string
	IconRef   *string
	UpdatedAt string
}

// Tx is the view of the store available inside the exclusive section.
type Tx interface {
	CountMatching(ctx context.Context, buttonID int, day string) (int, error)
	Append(ctx context.Context, e Event) (Event, error)
	AppendRecord(ctx context.Context, rec Record) (int64, error)
}

// Writer owns the store-wide exclusive section. fn runs with the section held
// and the section is released on every exit path of Exclusive.
type Writer interface {
	Exclusive(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Reader interface {
	Aggregate(ctx context.Context, scope Scope) ([]AggregateRow, error)
	// ListDay returns the rows whose normalized day is day, in the order
	// they happened.
	ListDay(ctx context.Context, day string) ([]Record, error)
	// Last returns the most recently stored row, or ErrNotFound.
	Last(ctx context.Context) (Record, error)
}

type ButtonStore interface {
	ButtonLabel(ctx context.Context, buttonID int) (string, error)
	GetButton(ctx context.Context, buttonID int) (ButtonConfig, error)
	ListButtons(ctx context.Context) ([]ButtonConfig, error)
	SeedButtons(ctx context.Context, ids []int) error
	SetButtonLabel(ctx context.Context, buttonID int, label string) error
	SetButtonIcon(ctx context.Context, buttonID int, iconRef *string) error
}

type Store interface {
	Writer
	Reader
	ButtonStore
	Close() error
}

// DefaultLabel is the label used when no configured label is available.
func DefaultLabel(buttonID int) string {
	return "Button " + itoa(buttonID)
}
