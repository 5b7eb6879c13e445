package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

const maxRequestBodyBytes = 8 << 20

func registerAPIRoutes(mux *http.ServeMux, srv *Server) {
	mux.HandleFunc("/api/v1/clicks", srv.handleClicks)
	mux.HandleFunc("/api/v1/clicks/last", srv.handleLastClick)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.HandleFunc("/api/v1/stats/", srv.handleStats)
	mux.HandleFunc("/api/v1/buttons", srv.handleButtons)
	mux.HandleFunc("/api/v1/buttons/", srv.handleButtonAPI)
	mux.HandleFunc("/api/v1/import", srv.handleImport)
	mux.HandleFunc("/api/v1/audit", srv.handleAudit)
}

func (s *Server) handleButtonAPI(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/buttons/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleButton(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "icon":
		s.handleButtonIcon(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeAPIError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	return false
}

func (s *Server) requireReady(w http.ResponseWriter) bool {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return false
	}
	return true
}

// decodeJSONBody reads exactly one JSON object into dst and writes the error
// response itself when it returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if isMaxBytesError(err) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()})
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if isMaxBytesError(err) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid request body", []string{"request body must contain a single JSON object"})
		return false
	}
	return true
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
