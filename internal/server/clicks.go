package server

import (
	"fmt"
	"net/http"

	"github.com/benedict2310/tally/internal/audit"
	"github.com/benedict2310/tally/internal/clicks"
)

type clickRequest struct {
	ButtonID *int `json:"buttonId"`
}

type pressesResponse struct {
	Day     string         `json:"date"`
	Presses []clicks.Press `json:"presses"`
}

func (s *Server) handleClicks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	if r.Method == http.MethodGet {
		s.handleListPresses(w, r)
		return
	}

	var req clickRequest
	if !decodeJSONBody(w, r, &req, 4<<10) {
		return
	}
	if req.ButtonID == nil {
		writeAPIError(w, http.StatusBadRequest, "buttonId is required", nil)
		return
	}

	res, err := s.sequencer.RecordClick(r.Context(), *req.ButtonID)
	if err != nil {
		s.writeEngineError(w, r, "record click failed", err, "button_id", *req.ButtonID)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListPresses(w http.ResponseWriter, r *http.Request) {
	day := s.dayParam(r)
	presses, err := s.aggregator.Presses(r.Context(), day)
	if err != nil {
		s.writeEngineError(w, r, "list presses failed", err, "day", day)
		return
	}
	writeJSON(w, http.StatusOK, pressesResponse{Day: day, Presses: presses})
}

func (s *Server) handleLastClick(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	last, err := s.aggregator.LastPress(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "read last press failed", err)
		return
	}
	writeJSON(w, http.StatusOK, last)
}

type importRequest struct {
	Records []clicks.LegacyRecord `json:"records"`
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.requireReady(w) {
		return
	}

	var req importRequest
	if !decodeJSONBody(w, r, &req, maxRequestBodyBytes) {
		return
	}
	n, err := s.sequencer.ImportLegacy(r.Context(), req.Records)
	if err != nil {
		s.writeEngineError(w, r, "import legacy clicks failed", err, "records", len(req.Records))
		return
	}
	s.recordAudit(r, audit.Entry{
		Operation: audit.OperationClicksImport,
		Summary:   fmt.Sprintf("imported %d click records", n),
		Metadata:  map[string]any{"records": n},
	})
	writeJSON(w, http.StatusCreated, importResponse{Imported: n})
}
