package server

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/benedict2310/tally/internal/chart"
	"github.com/benedict2310/tally/internal/clicks"
)

func (s *Server) handleDaysChart(w http.ResponseWriter, r *http.Request) {
	lookback, ok := lookbackParam(w, r)
	if !ok {
		return
	}
	days, err := s.aggregator.PerDay(r.Context(), lookback)
	if err != nil {
		s.writeEngineError(w, r, "read per-day counts failed", err)
		return
	}
	s.writeChart(w, r, daysChart(days, s.cfg.ChartAccent))
}

func (s *Server) handleHoursChart(w http.ResponseWriter, r *http.Request) {
	day := s.dayParam(r)
	hours, err := s.aggregator.PerHour(r.Context(), day)
	if err != nil {
		s.writeEngineError(w, r, "read per-hour counts failed", err, "day", day)
		return
	}
	s.writeChart(w, r, hoursChart(day, hours, s.cfg.ChartAccent))
}

func daysChart(days []clicks.DayCount, accent string) chart.Chart {
	c := chart.Chart{Title: "Clicks per day", AccentColor: accent}
	total := 0
	for _, d := range days {
		label := d.Day
		if len(label) == len("2006-01-02") {
			label = label[5:]
		}
		c.Bars = append(c.Bars, chart.Bar{Label: label, Value: d.Count})
		total += d.Count
	}
	if len(days) > 0 {
		c.Subtitle = fmt.Sprintf("%s to %s, %s", days[0].Day, days[len(days)-1].Day, clickNoun(total))
	}
	return c
}

func hoursChart(day string, hours []clicks.HourCount, accent string) chart.Chart {
	c := chart.Chart{Title: "Clicks per hour", AccentColor: accent}
	total := 0
	for _, h := range hours {
		c.Bars = append(c.Bars, chart.Bar{Label: fmt.Sprintf("%02d", h.Hour), Value: h.Count})
		total += h.Count
	}
	c.Subtitle = day + ", " + clickNoun(total)
	return c
}

func clickNoun(n int) string {
	if n == 1 {
		return "1 click"
	}
	return strconv.Itoa(n) + " clicks"
}

func (s *Server) writeChart(w http.ResponseWriter, r *http.Request, c chart.Chart) {
	key := chart.CacheKey(c)
	etag := `"` + hex.EncodeToString(key[:16]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	body, err := chart.Render(c)
	if err != nil {
		s.logger.Error("render chart failed", "title", c.Title, "error", err)
		writeAPIError(w, http.StatusInternalServerError, "render chart failed", nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "*" || strings.TrimPrefix(part, "W/") == etag {
			return true
		}
	}
	return false
}
