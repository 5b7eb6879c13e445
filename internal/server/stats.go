package server

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/benedict2310/tally/internal/clicks"
)

type buttonCount struct {
	ButtonID int `json:"buttonId"`
	Count    int `json:"count"`
}

type statsResponse struct {
	Today   string             `json:"today"`
	Totals  clicks.Totals      `json:"totals"`
	Buttons []buttonCount      `json:"buttons"`
	Days    []clicks.DayCount  `json:"days"`
	Hours   []clicks.HourCount `json:"hours"`
}

type daysResponse struct {
	Lookback int               `json:"lookback"`
	Days     []clicks.DayCount `json:"days"`
}

type hoursResponse struct {
	Day   string             `json:"date"`
	Hours []clicks.HourCount `json:"hours"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireReady(w) {
		return
	}

	switch strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/stats"), "/") {
	case "":
		s.handleStatsSummary(w, r)
	case "totals":
		totals, err := s.aggregator.Totals(r.Context())
		if err != nil {
			s.writeEngineError(w, r, "read totals failed", err)
			return
		}
		writeJSON(w, http.StatusOK, totals)
	case "buttons":
		counts, err := s.aggregator.PerButton(r.Context())
		if err != nil {
			s.writeEngineError(w, r, "read per-button counts failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"buttons": sortedButtonCounts(counts)})
	case "days":
		lookback, ok := lookbackParam(w, r)
		if !ok {
			return
		}
		days, err := s.aggregator.PerDay(r.Context(), lookback)
		if err != nil {
			s.writeEngineError(w, r, "read per-day counts failed", err)
			return
		}
		writeJSON(w, http.StatusOK, daysResponse{Lookback: lookback, Days: days})
	case "hours":
		day := s.dayParam(r)
		hours, err := s.aggregator.PerHour(r.Context(), day)
		if err != nil {
			s.writeEngineError(w, r, "read per-hour counts failed", err, "day", day)
			return
		}
		writeJSON(w, http.StatusOK, hoursResponse{Day: day, Hours: hours})
	case "days.png":
		s.handleDaysChart(w, r)
	case "hours.png":
		s.handleHoursChart(w, r)
	default:
		http.NotFound(w, r)
	}
}

func lookbackParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("lookback"))
	if raw == "" {
		return clicks.DefaultLookbackDays, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > 366 {
		writeAPIError(w, http.StatusBadRequest, "lookback must be an integer between 1 and 366", nil)
		return 0, false
	}
	return v, true
}

func (s *Server) dayParam(r *http.Request) string {
	if day := strings.TrimSpace(r.URL.Query().Get("day")); day != "" {
		return day
	}
	return s.aggregator.Today()
}

func (s *Server) handleStatsSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := statsResponse{Today: s.aggregator.Today()}

	var err error
	if out.Totals, err = s.aggregator.Totals(ctx); err != nil {
		s.writeEngineError(w, r, "read totals failed", err)
		return
	}
	counts, err := s.aggregator.PerButton(ctx)
	if err != nil {
		s.writeEngineError(w, r, "read per-button counts failed", err)
		return
	}
	out.Buttons = sortedButtonCounts(counts)
	if out.Days, err = s.aggregator.PerDay(ctx, clicks.DefaultLookbackDays); err != nil {
		s.writeEngineError(w, r, "read per-day counts failed", err)
		return
	}
	if out.Hours, err = s.aggregator.PerHourToday(ctx); err != nil {
		s.writeEngineError(w, r, "read per-hour counts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func sortedButtonCounts(counts map[int]int) []buttonCount {
	out := make([]buttonCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, buttonCount{ButtonID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ButtonID < out[j].ButtonID })
	return out
}
