package eventstore

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isoDatePrefix    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	isoTimePrefix    = regexp.MustCompile(`^(\d{2}):\d{2}`)
	timestampHourRE  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}.(\d{2})`)
	isoClock         = regexp.MustCompile(`^\d{2}:[0-5]\d`)
	timestampClockRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}.(\d{2}:[0-5]\d)`)
)

// Normalized is the (day, hour) projection of a stored record.
type Normalized struct {
	Day       string
	DayKnown  bool
	Hour      int
	HourKnown bool
}

func Normalize(r Record) Normalized {
	var n Normalized
	n.Day, n.DayKnown = NormalizeDay(r)
	n.Hour, n.HourKnown = NormalizeHour(r)
	return n
}

// NormalizeDay resolves the calendar day: explicit ISO day, then the native
// date column, then the first 10 characters of the combined timestamp.
// Display-only dates never resolve.
func NormalizeDay(r Record) (string, bool) {
	if v := strings.TrimSpace(r.DateISO); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(r.Date); isoDatePrefix.MatchString(v) {
		return v[:10], true
	}
	if v := strings.TrimSpace(r.Timestamp); isoDatePrefix.MatchString(v) {
		return v[:10], true
	}
	return "", false
}

// NormalizeHour resolves the hour of day from the time column, then from the
// two digits following the date and one separator in the combined timestamp.
func NormalizeHour(r Record) (int, bool) {
	if m := isoTimePrefix.FindStringSubmatch(strings.TrimSpace(r.Time)); m != nil {
		return parseHour(m[1])
	}
	if m := timestampHourRE.FindStringSubmatch(strings.TrimSpace(r.Timestamp)); m != nil {
		return parseHour(m[1])
	}
	return 0, false
}

// NormalizeClock resolves the HH:MM time of day with the same precedence as
// NormalizeHour.
func NormalizeClock(r Record) (string, bool) {
	if v := strings.TrimSpace(r.Time); isoClock.MatchString(v) {
		if _, ok := parseHour(v[:2]); ok {
			return v[:5], true
		}
	}
	if m := timestampClockRE.FindStringSubmatch(strings.TrimSpace(r.Timestamp)); m != nil {
		if _, ok := parseHour(m[1][:2]); ok {
			return m[1], true
		}
	}
	return "", false
}

func parseHour(v string) (int, bool) {
	h, err := strconv.Atoi(v)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
