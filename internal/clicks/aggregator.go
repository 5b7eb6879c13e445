package clicks

import (
	"context"
	"fmt"
	"time"

	"github.com/benedict2310/tally/internal/eventstore"
)

type Totals struct {
	AllTime int `json:"allTime"`
	Today   int `json:"today"`
}

type DayCount struct {
	Day   string `json:"date"`
	Count int    `json:"count"`
}

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Aggregator reads counts straight from the store. It never takes the
// exclusive section, so it may observe a press that is mid-write either way.
type Aggregator struct {
	store eventstore.Reader
	settings
}

func NewAggregator(store eventstore.Reader, opts Options) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is nil")
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Aggregator{store: store, settings: s}, nil
}

// Today is the current calendar day in the configured location.
func (a *Aggregator) Today() string {
	return a.clock().Format(eventstore.DayLayout)
}

func (a *Aggregator) Buttons() []int {
	return append([]int(nil), a.buttons...)
}

func (a *Aggregator) Totals(ctx context.Context) (Totals, error) {
	all, err := a.store.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeAllTime})
	if err != nil {
		return Totals{}, err
	}
	today, err := a.store.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeToday, Day: a.Today()})
	if err != nil {
		return Totals{}, err
	}
	return Totals{AllTime: sumCounts(all), Today: sumCounts(today)}, nil
}

// PerButton returns a count for every allowed button, zero when it has none.
// Buttons outside the allowed set that still have stored presses are
// reported as well.
func (a *Aggregator) PerButton(ctx context.Context) (map[int]int, error) {
	rows, err := a.store.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeButtons})
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(a.buttons))
	for _, id := range a.buttons {
		out[id] = 0
	}
	for _, r := range rows {
		out[r.ButtonID] += r.Count
	}
	return out, nil
}

// PerDay returns ascending day counts for the window ending today. Days
// without presses are omitted. lookbackDays <= 0 uses DefaultLookbackDays.
func (a *Aggregator) PerDay(ctx context.Context, lookbackDays int) ([]DayCount, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	rows, err := a.store.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeDays, Day: a.Today(), LookbackDays: lookbackDays})
	if err != nil {
		return nil, err
	}
	out := make([]DayCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, DayCount{Day: r.Day, Count: r.Count})
	}
	return out, nil
}

func (a *Aggregator) PerHourToday(ctx context.Context) ([]HourCount, error) {
	return a.perHour(ctx, a.Today())
}

// PerHour is PerHourToday for an arbitrary ISO day.
func (a *Aggregator) PerHour(ctx context.Context, day string) ([]HourCount, error) {
	if _, err := time.Parse(eventstore.DayLayout, day); err != nil {
		return nil, fmt.Errorf("%w: day %q is not YYYY-MM-DD", ErrInvalidInput, day)
	}
	return a.perHour(ctx, day)
}

func (a *Aggregator) perHour(ctx context.Context, day string) ([]HourCount, error) {
	rows, err := a.store.Aggregate(ctx, eventstore.Scope{Kind: eventstore.ScopeHours, Day: day})
	if err != nil {
		return nil, err
	}
	out := make([]HourCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, HourCount{Hour: r.Hour, Count: r.Count})
	}
	return out, nil
}

// Press is one stored press as listed back to clients. Date and Time are
// empty for rows whose day or time of day cannot be resolved.
type Press struct {
	Seq         int    `json:"seq"`
	ButtonID    int    `json:"buttonId"`
	ButtonLabel string `json:"buttonLabel"`
	Day         string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
}

func pressFromRecord(r eventstore.Record) Press {
	p := Press{Seq: r.Seq, ButtonID: r.ButtonID, ButtonLabel: r.ButtonLabel}
	p.Day, _ = eventstore.NormalizeDay(r)
	p.Time, _ = eventstore.NormalizeClock(r)
	return p
}

// Presses lists the presses of day in the order they happened.
func (a *Aggregator) Presses(ctx context.Context, day string) ([]Press, error) {
	if _, err := time.Parse(eventstore.DayLayout, day); err != nil {
		return nil, fmt.Errorf("%w: day %q is not YYYY-MM-DD", ErrInvalidInput, day)
	}
	recs, err := a.store.ListDay(ctx, day)
	if err != nil {
		return nil, err
	}
	out := make([]Press, 0, len(recs))
	for _, r := range recs {
		out = append(out, pressFromRecord(r))
	}
	return out, nil
}

// LastPress returns the most recently stored press. It wraps
// eventstore.ErrNotFound when nothing has been pressed yet.
func (a *Aggregator) LastPress(ctx context.Context) (Press, error) {
	r, err := a.store.Last(ctx)
	if err != nil {
		return Press{}, err
	}
	return pressFromRecord(r), nil
}

func sumCounts(rows []eventstore.AggregateRow) int {
	n := 0
	for _, r := range rows {
		n += r.Count
	}
	return n
}
