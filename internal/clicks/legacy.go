package clicks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/tally/internal/eventstore"
)

var (
	trailingInt = regexp.MustCompile(`(\d+)\s*$`)
	isoDay      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
)

// LegacyRecord is a click exported by the key-value generation of the
// service. Date holds either a display date (dd/mm/YYYY) or an ISO day.
type LegacyRecord struct {
	ButtonID  int    `json:"buttonId,omitempty"`
	Button    string `json:"button,omitempty"`
	Seq       int    `json:"seq"`
	Date      string `json:"date,omitempty"`
	DateISO   string `json:"dateIso,omitempty"`
	Time      string `json:"time,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Record converts l into the stored row shape. The button id comes from
// ButtonID, or from the trailing number of the Button label ("Botão 3").
func (l LegacyRecord) Record() (eventstore.Record, error) {
	id := l.ButtonID
	if id == 0 {
		m := trailingInt.FindStringSubmatch(strings.TrimSpace(l.Button))
		if m == nil {
			return eventstore.Record{}, fmt.Errorf("%w: record has no button id", ErrInvalidInput)
		}
		parsed, err := strconv.Atoi(m[1])
		if err != nil {
			return eventstore.Record{}, fmt.Errorf("%w: button %q: %v", ErrInvalidInput, l.Button, err)
		}
		id = parsed
	}
	if id <= 0 {
		return eventstore.Record{}, fmt.Errorf("%w: button id %d must be positive", ErrInvalidInput, id)
	}
	if l.Seq < 1 {
		return eventstore.Record{}, fmt.Errorf("%w: seq %d must be at least 1", ErrInvalidInput, l.Seq)
	}

	label := strings.TrimSpace(l.Button)
	if label == "" {
		label = eventstore.DefaultLabel(id)
	}
	rec := eventstore.Record{
		ButtonID:    id,
		ButtonLabel: label,
		Seq:         l.Seq,
		DateISO:     strings.TrimSpace(l.DateISO),
		Time:        strings.TrimSpace(l.Time),
		Timestamp:   strings.TrimSpace(l.Timestamp),
	}
	if rec.DateISO != "" {
		if _, err := time.Parse(eventstore.DayLayout, rec.DateISO); err != nil {
			return eventstore.Record{}, fmt.Errorf("%w: dateIso %q is not a calendar day", ErrInvalidInput, rec.DateISO)
		}
	}
	date := strings.TrimSpace(l.Date)
	if isoDay.MatchString(date) {
		if _, err := time.Parse(eventstore.DayLayout, date[:10]); err != nil {
			return eventstore.Record{}, fmt.Errorf("%w: date %q is not a calendar day", ErrInvalidInput, date)
		}
		rec.Date = date[:10]
	} else {
		rec.DateDisplay = date
	}
	if rec.Time != "" && !validClock(rec.Time) {
		return eventstore.Record{}, fmt.Errorf("%w: time %q is not HH:MM or HH:MM:SS", ErrInvalidInput, rec.Time)
	}
	return rec, nil
}

func validClock(v string) bool {
	for _, layout := range []string{eventstore.TimeLayout, "15:04:05"} {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// ImportLegacy validates every record first and then appends the whole batch
// in one exclusive section, so a rejected file imports nothing. Records whose
// day resolves are renumbered to follow the presses already stored for their
// button and day; the seq carried in the file is kept only for undated rows.
func (s *Sequencer) ImportLegacy(ctx context.Context, recs []LegacyRecord) (int, error) {
	if len(recs) == 0 {
		return 0, fmt.Errorf("%w: no records to import", ErrInvalidInput)
	}
	rows := make([]eventstore.Record, 0, len(recs))
	for i, l := range recs {
		rec, err := l.Record()
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, rec)
	}
	n, err := eventstore.Import(ctx, s.store, rows)
	if err != nil {
		return 0, eventstore.Wrap("import legacy clicks", err)
	}
	s.logger.Info("legacy clicks imported", "count", n)
	return n, nil
}
