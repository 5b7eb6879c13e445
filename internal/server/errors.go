package server

import (
	"errors"
	"net/http"

	"github.com/benedict2310/tally/internal/clicks"
	"github.com/benedict2310/tally/internal/eventstore"
)

func writeAPIError(w http.ResponseWriter, status int, message string, details []string) {
	resp := map[string]any{"error": message}
	if len(details) > 0 {
		resp["details"] = details
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeInternalAPIError(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	logAttrs := make([]any, 0, len(attrs)+4)
	logAttrs = append(logAttrs, "error", err, "request_id", RequestIDFromContext(r.Context()))
	logAttrs = append(logAttrs, attrs...)
	s.logger.ErrorContext(r.Context(), message, logAttrs...)
	writeAPIError(w, http.StatusInternalServerError, message, nil)
}

// writeEngineError maps sequencer and store failures to status codes:
// invalid input 400, missing row 404, lock timeout 503, anything else 500.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	switch {
	case errors.Is(err, clicks.ErrInvalidInput):
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, eventstore.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, err.Error(), nil)
	case eventstore.IsTimeout(err):
		s.logger.WarnContext(r.Context(), message, append([]any{"error", err, "request_id", RequestIDFromContext(r.Context())}, attrs...)...)
		w.Header().Set("Retry-After", "1")
		writeAPIError(w, http.StatusServiceUnavailable, "click store is busy; retry", nil)
	default:
		s.writeInternalAPIError(w, r, message, err, attrs...)
	}
}
