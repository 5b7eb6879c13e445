package server

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benedict2310/tally/internal/chart"
	"github.com/benedict2310/tally/internal/clicks"
)

func TestHandleStatsCharts(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC))
	serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":1}`))

	for _, path := range []string{"/api/v1/stats/days.png?lookback=7", "/api/v1/stats/hours.png"} {
		rec := serve(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s expected 200, got %d body=%s", path, rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Content-Type"); got != "image/png" {
			t.Fatalf("GET %s content type = %q", path, got)
		}
		cfg, err := png.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
		if err != nil {
			t.Fatalf("DecodeConfig(%s) error = %v", path, err)
		}
		if cfg.Width != chart.Width || cfg.Height != chart.Height {
			t.Fatalf("GET %s unexpected dimensions %dx%d", path, cfg.Width, cfg.Height)
		}
		if rec.Header().Get("ETag") == "" {
			t.Fatalf("GET %s expected ETag header", path)
		}
	}

	for path, want := range map[string]int{
		"/api/v1/stats/days.png?lookback=400":  http.StatusBadRequest,
		"/api/v1/stats/hours.png?day=tomorrow": http.StatusBadRequest,
	} {
		if rec := serve(t, srv, http.MethodGet, path, nil); rec.Code != want {
			t.Fatalf("GET %s expected %d, got %d", path, want, rec.Code)
		}
	}
}

func TestHandleStatsChartNotModified(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC))

	first := serve(t, srv, http.MethodGet, "/api/v1/stats/hours.png", nil)
	etag := first.Header().Get("ETag")
	if first.Code != http.StatusOK || etag == "" {
		t.Fatalf("unexpected first response code=%d etag=%q", first.Code, etag)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats/hours.png", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304 for matching ETag, got %d", rec.Code)
	}

	serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":2}`))
	rec = httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after a new click changed the chart, got %d", rec.Code)
	}
}

func TestDaysChartLabels(t *testing.T) {
	c := daysChart([]clicks.DayCount{{Day: "2024-03-04", Count: 1}, {Day: "2024-03-05", Count: 2}}, "")
	if len(c.Bars) != 2 || c.Bars[0].Label != "03-04" || c.Bars[1].Value != 2 {
		t.Fatalf("unexpected bars %#v", c.Bars)
	}
	if c.Subtitle != "2024-03-04 to 2024-03-05, 3 clicks" {
		t.Fatalf("unexpected subtitle %q", c.Subtitle)
	}
	h := hoursChart("2024-03-05", []clicks.HourCount{{Hour: 9, Count: 1}}, "#6d9ea3")
	if h.Bars[0].Label != "09" || h.Subtitle != "2024-03-05, 1 click" || h.AccentColor != "#6d9ea3" {
		t.Fatalf("unexpected hours chart %#v", h)
	}
}

func TestEtagMatches(t *testing.T) {
	if !etagMatches(`"a", "b"`, `"b"`) || !etagMatches(`W/"b"`, `"b"`) || !etagMatches("*", `"b"`) {
		t.Fatalf("expected etag match")
	}
	if etagMatches(`"a"`, `"b"`) {
		t.Fatalf("unexpected etag match")
	}
}
