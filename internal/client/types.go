package client

import "time"

type ClickResult struct {
	ButtonID    int       `json:"buttonId" yaml:"buttonId"`
	Seq         int       `json:"seq" yaml:"seq"`
	Date        string    `json:"date" yaml:"date"`
	Time        string    `json:"time" yaml:"time"`
	OccurredAt  time.Time `json:"occurredAt" yaml:"occurredAt"`
	ButtonLabel string    `json:"buttonLabel" yaml:"buttonLabel"`
}

type Press struct {
	Seq         int    `json:"seq" yaml:"seq"`
	ButtonID    int    `json:"buttonId" yaml:"buttonId"`
	ButtonLabel string `json:"buttonLabel" yaml:"buttonLabel"`
	Date        string `json:"date,omitempty" yaml:"date,omitempty"`
	Time        string `json:"time,omitempty" yaml:"time,omitempty"`
}

type PressesResponse struct {
	Date    string  `json:"date" yaml:"date"`
	Presses []Press `json:"presses" yaml:"presses"`
}

type Totals struct {
	AllTime int `json:"allTime" yaml:"allTime"`
	Today   int `json:"today" yaml:"today"`
}

type ButtonCount struct {
	ButtonID int `json:"buttonId" yaml:"buttonId"`
	Count    int `json:"count" yaml:"count"`
}

type ButtonCountsResponse struct {
	Buttons []ButtonCount `json:"buttons" yaml:"buttons"`
}

type DayCount struct {
	Date  string `json:"date" yaml:"date"`
	Count int    `json:"count" yaml:"count"`
}

type DaysResponse struct {
	Lookback int        `json:"lookback" yaml:"lookback"`
	Days     []DayCount `json:"days" yaml:"days"`
}

type HourCount struct {
	Hour  int `json:"hour" yaml:"hour"`
	Count int `json:"count" yaml:"count"`
}

type HoursResponse struct {
	Date  string      `json:"date" yaml:"date"`
	Hours []HourCount `json:"hours" yaml:"hours"`
}

type StatsResponse struct {
	Today   string        `json:"today" yaml:"today"`
	Totals  Totals        `json:"totals" yaml:"totals"`
	Buttons []ButtonCount `json:"buttons" yaml:"buttons"`
	Days    []DayCount    `json:"days" yaml:"days"`
	Hours   []HourCount   `json:"hours" yaml:"hours"`
}

type Button struct {
	ButtonID  int     `json:"buttonId" yaml:"buttonId"`
	Label     string  `json:"label" yaml:"label"`
	IconRef   *string `json:"iconRef,omitempty" yaml:"iconRef,omitempty"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	UpdatedAt string  `json:"updatedAt" yaml:"updatedAt"`
}

type ButtonsResponse struct {
	Buttons []Button `json:"buttons" yaml:"buttons"`
}

// ImportRecord is one click in the key-value export format.
type ImportRecord struct {
	ButtonID  int    `json:"buttonId,omitempty"`
	Button    string `json:"button,omitempty"`
	Seq       int    `json:"seq"`
	Date      string `json:"date,omitempty"`
	DateISO   string `json:"dateIso,omitempty"`
	Time      string `json:"time,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ImportResponse struct {
	Imported int `json:"imported" yaml:"imported"`
}

type AuditQuery struct {
	ButtonID  int
	Operation string
	Limit     int
	Offset    int
}

type AuditEntry struct {
	ID        int64          `json:"id" yaml:"id"`
	Actor     string         `json:"actor" yaml:"actor"`
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	ButtonID  *int           `json:"buttonId,omitempty" yaml:"buttonId,omitempty"`
	Operation string         `json:"operation" yaml:"operation"`
	Summary   string         `json:"summary" yaml:"summary"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type AuditResponse struct {
	Entries []AuditEntry `json:"entries" yaml:"entries"`
	Total   int          `json:"total" yaml:"total"`
	Limit   int          `json:"limit" yaml:"limit"`
	Offset  int          `json:"offset" yaml:"offset"`
}

type VersionResponse struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"goVersion,omitempty" yaml:"goVersion,omitempty"`
}
