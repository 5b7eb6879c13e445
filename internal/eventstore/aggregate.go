package eventstore

import (
	"fmt"
	"sort"
	"time"
)

type ScopeKind int

const (
	ScopeAllTime ScopeKind = iota
	ScopeToday
	ScopeButtons
	ScopeDays
	ScopeHours
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeAllTime:
		return "all-time"
	case ScopeToday:
		return "today"
	case ScopeButtons:
		return "buttons"
	case ScopeDays:
		return "days"
	case ScopeHours:
		return "hours"
	default:
		return fmt.Sprintf("scope(%d)", int(k))
	}
}

// Scope selects one aggregate. Day is the reference day for ScopeToday and
// ScopeHours and the last day of the window for ScopeDays.
type Scope struct {
	Kind         ScopeKind
	Day          string
	LookbackDays int
}

// AggregateRow is one grouped count. Only the key matching the scope kind is
// set: ButtonID for ScopeButtons, Day for ScopeDays, Hour for ScopeHours.
type AggregateRow struct {
	ButtonID int
	Day      string
	Hour     int
	Count    int
}

func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeAllTime, ScopeButtons:
		return nil
	case ScopeToday, ScopeHours:
		if _, err := time.Parse(DayLayout, s.Day); err != nil {
			return fmt.Errorf("%s scope: invalid day %q", s.Kind, s.Day)
		}
		return nil
	case ScopeDays:
		if _, err := time.Parse(DayLayout, s.Day); err != nil {
			return fmt.Errorf("%s scope: invalid day %q", s.Kind, s.Day)
		}
		if s.LookbackDays <= 0 {
			return fmt.Errorf("%s scope: lookback days must be > 0", s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unsupported scope %s", s.Kind)
	}
}

// Window returns the inclusive [from, to] day range the scope reads.
func (s Scope) Window() (string, string, error) {
	if err := s.Validate(); err != nil {
		return "", "", err
	}
	switch s.Kind {
	case ScopeToday, ScopeHours:
		return s.Day, s.Day, nil
	case ScopeDays:
		end, _ := time.Parse(DayLayout, s.Day)
		start := end.AddDate(0, 0, -(s.LookbackDays - 1))
		return start.Format(DayLayout), s.Day, nil
	default:
		return "", "", fmt.Errorf("%s scope has no day window", s.Kind)
	}
}

// CountMatching counts records whose normalized (button, day) equals the
// arguments. Stores pass it pre-filtered candidates.
func CountMatching(recs []Record, buttonID int, day string) int {
	n := 0
	for _, r := range recs {
		if r.ButtonID != buttonID {
			continue
		}
		if d, ok := NormalizeDay(r); ok && d == day {
			n++
		}
	}
	return n
}

// FilterDay keeps the records whose normalized day is day, ordered by instant.
func FilterDay(recs []Record, day string) []Record {
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if d, ok := NormalizeDay(r); ok && d == day {
			out = append(out, r)
		}
	}
	return SortByInstant(out)
}

// Tally reduces candidate records for the day-windowed scopes. Records whose
// day or hour does not resolve are left out of the affected aggregate.
func Tally(scope Scope, recs []Record) ([]AggregateRow, error) {
	from, to, err := scope.Window()
	if err != nil {
		return nil, err
	}

	switch scope.Kind {
	case ScopeToday:
		n := 0
		for _, r := range recs {
			if d, ok := NormalizeDay(r); ok && d == scope.Day {
				n++
			}
		}
		return []AggregateRow{{Day: scope.Day, Count: n}}, nil
	case ScopeDays:
		byDay := map[string]int{}
		for _, r := range recs {
			d, ok := NormalizeDay(r)
			if !ok || d < from || d > to {
				continue
			}
			byDay[d]++
		}
		out := make([]AggregateRow, 0, len(byDay))
		for d, n := range byDay {
			out = append(out, AggregateRow{Day: d, Count: n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
		return out, nil
	case ScopeHours:
		byHour := map[int]int{}
		for _, r := range recs {
			n := Normalize(r)
			if !n.DayKnown || n.Day != scope.Day || !n.HourKnown {
				continue
			}
			byHour[n.Hour]++
		}
		out := make([]AggregateRow, 0, len(byHour))
		for h, n := range byHour {
			out = append(out, AggregateRow{Day: scope.Day, Hour: h, Count: n})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
		return out, nil
	default:
		return nil, fmt.Errorf("%s scope is not tallied from records", scope.Kind)
	}
}

func SortByButton(rows []AggregateRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].ButtonID < rows[j].ButtonID })
}
