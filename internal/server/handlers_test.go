package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

var testPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func startTestServer(t *testing.T, at time.Time) *Server {
	t.Helper()
	srv, err := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)), "v-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.now = func() time.Time { return at }
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func serve(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleClicksAssignsSequence(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC))

	want := []struct {
		button int
		seq    int
	}{{1, 1}, {1, 2}, {2, 1}}
	for _, w := range want {
		rec := serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":`+strconv.Itoa(w.button)+`}`))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		var res struct {
			ButtonID    int    `json:"buttonId"`
			Seq         int    `json:"seq"`
			Date        string `json:"date"`
			Time        string `json:"time"`
			ButtonLabel string `json:"buttonLabel"`
		}
		decodeBody(t, rec, &res)
		if res.ButtonID != w.button || res.Seq != w.seq || res.Date != "2024-03-05" || res.Time != "14:22" {
			t.Fatalf("unexpected click response %#v", res)
		}
		if res.ButtonLabel != "Button "+strconv.Itoa(w.button) {
			t.Fatalf("unexpected label %q", res.ButtonLabel)
		}
	}

	rec := serve(t, srv, http.MethodGet, "/api/v1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", rec.Code)
	}
	var stats statsResponse
	decodeBody(t, rec, &stats)
	if stats.Today != "2024-03-05" || stats.Totals.AllTime != 3 || stats.Totals.Today != 3 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	wantButtons := []buttonCount{{1, 2}, {2, 1}, {3, 0}, {4, 0}}
	if len(stats.Buttons) != len(wantButtons) {
		t.Fatalf("unexpected per-button counts %#v", stats.Buttons)
	}
	for i, b := range wantButtons {
		if stats.Buttons[i] != b {
			t.Fatalf("unexpected per-button counts %#v", stats.Buttons)
		}
	}
	if len(stats.Hours) != 1 || stats.Hours[0].Hour != 14 || stats.Hours[0].Count != 3 {
		t.Fatalf("unexpected per-hour counts %#v", stats.Hours)
	}
}

func TestHandleClicksRejectsInvalidRequests(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC))

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "unknown button", method: http.MethodPost, body: `{"buttonId":9}`, want: http.StatusBadRequest},
		{name: "missing button", method: http.MethodPost, body: `{}`, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, body: `{"buttonId":1,"extra":true}`, want: http.StatusBadRequest},
		{name: "two objects", method: http.MethodPost, body: `{"buttonId":1}{"buttonId":2}`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodDelete, body: ``, want: http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(t, srv, tc.method, "/api/v1/clicks", []byte(tc.body))
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}

	totals := serve(t, srv, http.MethodGet, "/api/v1/stats/totals", nil)
	var got map[string]int
	decodeBody(t, totals, &got)
	if got["allTime"] != 0 {
		t.Fatalf("rejected presses must not be stored, got %#v", got)
	}
}

func TestHandlePressListingAndLast(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC))

	if rec := serve(t, srv, http.MethodGet, "/api/v1/clicks/last", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any press, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, button := range []int{1, 2, 1} {
		if rec := serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":`+strconv.Itoa(button)+`}`)); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
	}

	rec := serve(t, srv, http.MethodGet, "/api/v1/clicks", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for listing, got %d: %s", rec.Code, rec.Body.String())
	}
	var listed pressesResponse
	decodeBody(t, rec, &listed)
	if listed.Day != "2024-03-05" || len(listed.Presses) != 3 {
		t.Fatalf("unexpected listing %#v", listed)
	}
	wantSeq := []struct{ button, seq int }{{1, 1}, {2, 1}, {1, 2}}
	for i, w := range wantSeq {
		p := listed.Presses[i]
		if p.ButtonID != w.button || p.Seq != w.seq || p.Time != "14:22" || p.Day != "2024-03-05" {
			t.Fatalf("press %d = %#v, want button %d seq %d", i, p, w.button, w.seq)
		}
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/clicks?day=2024-03-04", nil)
	decodeBody(t, rec, &listed)
	if rec.Code != http.StatusOK || len(listed.Presses) != 0 {
		t.Fatalf("expected empty listing for another day, got %d %#v", rec.Code, listed)
	}
	if rec := serve(t, srv, http.MethodGet, "/api/v1/clicks?day=05/03/2024", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for display-format day, got %d", rec.Code)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/clicks/last", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for last press, got %d: %s", rec.Code, rec.Body.String())
	}
	var last struct {
		ButtonID int    `json:"buttonId"`
		Seq      int    `json:"seq"`
		Time     string `json:"time"`
	}
	decodeBody(t, rec, &last)
	if last.ButtonID != 1 || last.Seq != 2 || last.Time != "14:22" {
		t.Fatalf("unexpected last press %#v", last)
	}
	if rec := serve(t, srv, http.MethodPost, "/api/v1/clicks/last", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST last, got %d", rec.Code)
	}
}

func TestHandleStatsSubresources(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))
	serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":3}`))

	rec := serve(t, srv, http.MethodGet, "/api/v1/stats/days?lookback=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for days, got %d", rec.Code)
	}
	var days daysResponse
	decodeBody(t, rec, &days)
	if days.Lookback != 3 || len(days.Days) != 1 || days.Days[0].Day != "2024-03-05" || days.Days[0].Count != 1 {
		t.Fatalf("unexpected days %#v", days)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/stats/hours?day=2024-03-04", nil)
	var hours hoursResponse
	decodeBody(t, rec, &hours)
	if hours.Day != "2024-03-04" || len(hours.Hours) != 0 {
		t.Fatalf("unexpected hours %#v", hours)
	}

	for path, want := range map[string]int{
		"/api/v1/stats/days?lookback=0":     http.StatusBadRequest,
		"/api/v1/stats/days?lookback=x":     http.StatusBadRequest,
		"/api/v1/stats/hours?day=yesterday": http.StatusBadRequest,
		"/api/v1/stats/unknown":             http.StatusNotFound,
	} {
		if rec := serve(t, srv, http.MethodGet, path, nil); rec.Code != want {
			t.Fatalf("GET %s expected %d, got %d", path, want, rec.Code)
		}
	}
}

func TestHandleButtons(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))

	rec := serve(t, srv, http.MethodPut, "/api/v1/buttons/2", []byte(`{"label":"Window"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for label update, got %d: %s", rec.Code, rec.Body.String())
	}
	var b buttonResponse
	decodeBody(t, rec, &b)
	if b.ButtonID != 2 || b.Label != "Window" || !b.Enabled {
		t.Fatalf("unexpected button %#v", b)
	}

	click := serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":2}`))
	if !strings.Contains(click.Body.String(), `"buttonLabel":"Window"`) {
		t.Fatalf("expected configured label on click, got %s", click.Body.String())
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/buttons", nil)
	var list buttonsResponse
	decodeBody(t, rec, &list)
	if len(list.Buttons) != 4 || list.Buttons[1].Label != "Window" {
		t.Fatalf("unexpected buttons %#v", list)
	}

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPut, "/api/v1/buttons/9", `{"label":"Nope"}`, http.StatusBadRequest},
		{http.MethodPut, "/api/v1/buttons/1", `{"label":"  "}`, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/buttons/abc", ``, http.StatusBadRequest},
		{http.MethodGet, "/api/v1/buttons/9", ``, http.StatusNotFound},
		{http.MethodDelete, "/api/v1/buttons/1", ``, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/buttons/1/other", ``, http.StatusNotFound},
	} {
		if rec := serve(t, srv, tc.method, tc.path, []byte(tc.body)); rec.Code != tc.want {
			t.Fatalf("%s %s expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
	}
}

func TestHandleButtonIcon(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))

	if rec := serve(t, srv, http.MethodGet, "/api/v1/buttons/1/icon", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upload, got %d", rec.Code)
	}
	if rec := serve(t, srv, http.MethodPut, "/api/v1/buttons/1/icon", []byte("plain text")); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-image icon, got %d", rec.Code)
	}

	rec := serve(t, srv, http.MethodPut, "/api/v1/buttons/1/icon", testPNG)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for icon upload, got %d: %s", rec.Code, rec.Body.String())
	}
	var b buttonResponse
	decodeBody(t, rec, &b)
	if b.IconRef == nil || !strings.HasPrefix(*b.IconRef, "sha256:") {
		t.Fatalf("unexpected icon ref %#v", b)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/buttons/1/icon", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" || !bytes.Equal(rec.Body.Bytes(), testPNG) {
		t.Fatalf("unexpected icon download: %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	if rec := serve(t, srv, http.MethodDelete, "/api/v1/buttons/1/icon", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for icon delete, got %d", rec.Code)
	}
	if _, _, err := srv.icons.Download(context.Background(), *b.IconRef); err == nil {
		t.Fatalf("expected unreferenced icon blob to be removed")
	}
	if rec := serve(t, srv, http.MethodGet, "/api/v1/buttons/1/icon", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestHandleButtonIconSharedContentSurvivesConcurrentClear(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 25; i++ {
		serve(t, srv, http.MethodDelete, "/api/v1/buttons/1/icon", nil)
		if rec := serve(t, srv, http.MethodPut, "/api/v1/buttons/2/icon", testPNG); rec.Code != http.StatusOK {
			t.Fatalf("round %d: seed icon: %d %s", i, rec.Code, rec.Body.String())
		}

		var wg sync.WaitGroup
		codes := make([]int, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			codes[0] = serve(t, srv, http.MethodPut, "/api/v1/buttons/1/icon", testPNG).Code
		}()
		go func() {
			defer wg.Done()
			codes[1] = serve(t, srv, http.MethodDelete, "/api/v1/buttons/2/icon", nil).Code
		}()
		wg.Wait()
		if codes[0] != http.StatusOK || codes[1] != http.StatusNoContent {
			t.Fatalf("round %d: unexpected statuses %v", i, codes)
		}

		rec := serve(t, srv, http.MethodGet, "/api/v1/buttons/1/icon", nil)
		if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), testPNG) {
			t.Fatalf("round %d: icon of button 1 lost after concurrent clear: %d %s", i, rec.Code, rec.Body.String())
		}
	}
}

func TestHandleImport(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC))

	body := `{"records":[
		{"button":"Botão 1","seq":1,"date":"05/03/2024","dateIso":"2024-03-05","time":"09:10","timestamp":"2024-03-05T09:10:00+00:00"},
		{"button":"Botão 1","seq":2,"timestamp":"2024-03-05T14:22:00+00:00"}
	]}`
	rec := serve(t, srv, http.MethodPost, "/api/v1/import", []byte(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for import, got %d: %s", rec.Code, rec.Body.String())
	}
	var imported importResponse
	decodeBody(t, rec, &imported)
	if imported.Imported != 2 {
		t.Fatalf("unexpected import response %#v", imported)
	}

	rec = serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":1}`))
	if !strings.Contains(rec.Body.String(), `"seq":3`) {
		t.Fatalf("expected seq 3 after import, got %s", rec.Body.String())
	}

	if rec := serve(t, srv, http.MethodPost, "/api/v1/import", []byte(`{"records":[]}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty import, got %d", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := requestLogMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, RequestIDFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	id := rec.Header().Get("X-Request-Id")
	if _, err := ulid.ParseStrict(id); err != nil {
		t.Fatalf("expected generated ULID request id, got %q: %v", id, err)
	}
	if rec.Body.String() != id {
		t.Fatalf("context request id %q does not match header %q", rec.Body.String(), id)
	}

	incoming := ulid.Make().String()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", incoming)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") != incoming {
		t.Fatalf("expected incoming request id to be kept, got %q", rec.Header().Get("X-Request-Id"))
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "not-a-ulid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got == "not-a-ulid" || got == "" {
		t.Fatalf("expected malformed request id to be replaced, got %q", got)
	}
}

func TestHandleAuditRecordsConfigurationChanges(t *testing.T) {
	srv := startTestServer(t, time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/buttons/2", strings.NewReader(`{"label":"Window"}`))
	req.Header.Set(actorHeader, "kiosk")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(t, srv, http.MethodPut, "/api/v1/buttons/1/icon", testPNG); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for icon upload, got %d: %s", rec.Code, rec.Body.String())
	}
	// A click is not a configuration change.
	if rec := serve(t, srv, http.MethodPost, "/api/v1/clicks", []byte(`{"buttonId":1}`)); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.audit.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var all auditResponse
	decodeBody(t, rec, &all)
	if all.Total != 2 || len(all.Entries) != 2 {
		t.Fatalf("expected two audit entries, got %#v", all)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/audit?button=2", nil)
	var filtered auditResponse
	decodeBody(t, rec, &filtered)
	if filtered.Total != 1 {
		t.Fatalf("expected one entry for button 2, got %#v", filtered)
	}
	got := filtered.Entries[0]
	if got.Operation != "button.label" || got.Actor != "kiosk" || got.ButtonID == nil || *got.ButtonID != 2 {
		t.Fatalf("unexpected audit entry %#v", got)
	}
	if got.Metadata["label"] != "Window" || got.Metadata["requestId"] == "" {
		t.Fatalf("unexpected audit metadata %#v", got.Metadata)
	}

	rec = serve(t, srv, http.MethodGet, "/api/v1/audit?operation=button.icon.set", nil)
	var icons auditResponse
	decodeBody(t, rec, &icons)
	if icons.Total != 1 || icons.Entries[0].Actor != defaultActor {
		t.Fatalf("unexpected icon audit entries %#v", icons)
	}

	for _, bad := range []string{"?button=x", "?limit=-1", "?since=yesterday", "?operation=clicks.press"} {
		if rec := serve(t, srv, http.MethodGet, "/api/v1/audit"+bad, nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %q, got %d", bad, rec.Code)
		}
	}
}

func TestActorFromRequest(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", defaultActor},
		{" kiosk ", "kiosk"},
		{"bad\nactor", defaultActor},
		{strings.Repeat("a", maxActorLen+1), defaultActor},
	}
	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header[actorHeader] = []string{tc.header}
		}
		if got := actorFromRequest(r); got != tc.want {
			t.Fatalf("actorFromRequest(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
