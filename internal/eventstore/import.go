package eventstore

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Import appends legacy rows inside one exclusive section. Rows are taken in
// the order they happened (rows without a resolvable instant keep their input
// position after the timed ones) and every row whose day resolves is renumbered
// to the next seq of its (button, day), counting rows already stored. Rows with
// no resolvable day keep the seq they carry.
func Import(ctx context.Context, w Writer, recs []Record) (int, error) {
	ordered := SortByInstant(recs)
	imported := 0
	err := w.Exclusive(ctx, func(ctx context.Context, tx Tx) error {
		for _, rec := range ordered {
			if day, ok := NormalizeDay(rec); ok {
				n, err := tx.CountMatching(ctx, rec.ButtonID, day)
				if err != nil {
					return err
				}
				rec.Seq = n + 1
			}
			if _, err := tx.AppendRecord(ctx, rec); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return imported, nil
}

// SortByInstant returns recs ordered by when they happened. Rows without a
// resolvable instant follow in their original order.
func SortByInstant(recs []Record) []Record {
	type keyed struct {
		rec   Record
		at    time.Time
		timed bool
	}
	keys := make([]keyed, len(recs))
	for i, r := range recs {
		at, ok := recordInstant(r)
		keys[i] = keyed{rec: r, at: at, timed: ok}
	}
	slices.SortStableFunc(keys, func(a, b keyed) int {
		switch {
		case a.timed && !b.timed:
			return -1
		case !a.timed && b.timed:
			return 1
		case !a.timed:
			return 0
		}
		return a.at.Compare(b.at)
	})
	out := make([]Record, len(keys))
	for i, k := range keys {
		out[i] = k.rec
	}
	return out
}

// recordInstant resolves when a row happened: the combined timestamp, or the
// resolved day plus the time column read as UTC.
func recordInstant(r Record) (time.Time, bool) {
	if ts := strings.TrimSpace(r.Timestamp); ts != "" {
		if at, err := time.Parse(time.RFC3339, ts); err == nil {
			return at, true
		}
	}
	day, ok := NormalizeDay(r)
	if !ok {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(r.Time)
	if clock == "" {
		clock = "00:00"
	}
	for _, layout := range []string{DayLayout + " " + TimeLayout, DayLayout + " 15:04:05"} {
		if at, err := time.Parse(layout, day+" "+clock); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}
