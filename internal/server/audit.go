package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/tally/internal/audit"
	dbpkg "github.com/benedict2310/tally/internal/db"
)

const (
	actorHeader  = "X-Actor"
	defaultActor = "api"
	maxActorLen  = 128
)

type auditEntryResponse struct {
	ID        int64          `json:"id"`
	Actor     string         `json:"actor"`
	Timestamp string         `json:"timestamp"`
	ButtonID  *int           `json:"buttonId,omitempty"`
	Operation string         `json:"operation"`
	Summary   string         `json:"summary"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type auditResponse struct {
	Entries []auditEntryResponse `json:"entries"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

func (s *Server) openAudit(ctx context.Context) error {
	auditDB, err := dbpkg.Open(dbpkg.DefaultOptions(s.dataPaths.AuditDBPath))
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	sink, err := audit.NewSQLiteLogger(ctx, auditDB)
	if err != nil {
		_ = auditDB.Close()
		return err
	}
	s.auditDB = auditDB
	s.audit = audit.NewAsyncLogger(sink, audit.AsyncOptions{Logger: s.logger})
	return nil
}

func (s *Server) closeAudit(ctx context.Context) error {
	var firstErr error
	if s.audit != nil {
		if err := s.audit.Close(ctx); err != nil {
			firstErr = fmt.Errorf("drain audit log: %w", err)
		}
		s.audit = nil
	}
	if s.auditDB != nil {
		if err := s.auditDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close audit database: %w", err)
		}
		s.auditDB = nil
	}
	return firstErr
}

// recordAudit enqueues entry; a full or closed queue is logged, never
// surfaced to the caller.
func (s *Server) recordAudit(r *http.Request, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	entry.Actor = actorFromRequest(r)
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["requestId"] = RequestIDFromContext(r.Context())
	if err := s.audit.Log(r.Context(), entry); err != nil {
		s.logger.Warn("audit entry dropped", "operation", entry.Operation, "error", err)
	}
}

func actorFromRequest(r *http.Request) string {
	actor := strings.TrimSpace(r.Header.Get(actorHeader))
	if actor == "" || len(actor) > maxActorLen {
		return defaultActor
	}
	for _, c := range actor {
		if c < 0x20 || c == 0x7f {
			return defaultActor
		}
	}
	return actor
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	if s.audit == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "audit log is not available", nil)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		s.writeInternalAPIError(w, r, "query audit log failed", err)
		return
	}
	out := auditResponse{
		Entries: make([]auditEntryResponse, 0, len(res.Entries)),
		Total:   res.Total,
		Limit:   res.Limit,
		Offset:  res.Offset,
	}
	for _, e := range res.Entries {
		out.Entries = append(out.Entries, auditEntryResponse{
			ID:        e.ID,
			Actor:     e.Actor,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			ButtonID:  e.ButtonID,
			Operation: e.Operation,
			Summary:   e.Summary,
			Metadata:  e.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter
	if v := strings.TrimSpace(q.Get("button")); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("button must be a positive integer")
		}
		f.ButtonID = &id
	}
	f.Operation = strings.TrimSpace(q.Get("operation"))
	if f.Operation != "" && !audit.ValidOperationFilter(f.Operation) {
		return f, fmt.Errorf("unknown operation %q (expected one of %s, or a prefix such as button)", f.Operation, strings.Join(audit.Operations(), ", "))
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", p.name)
		}
		*p.dst = &ts
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("%s must be a non-negative integer", p.name)
		}
		*p.dst = n
	}
	return f, nil
}
