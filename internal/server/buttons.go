package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/benedict2310/tally/internal/audit"
	"github.com/benedict2310/tally/internal/eventstore"
	"github.com/benedict2310/tally/internal/icons"
	"github.com/benedict2310/tally/internal/names"
)

type buttonResponse struct {
	ButtonID  int     `json:"buttonId"`
	Label     string  `json:"label"`
	IconRef   *string `json:"iconRef,omitempty"`
	Enabled   bool    `json:"enabled"`
	UpdatedAt string  `json:"updatedAt"`
}

type buttonsResponse struct {
	Buttons []buttonResponse `json:"buttons"`
}

type buttonLabelRequest struct {
	Label string `json:"label"`
}

func (s *Server) toButtonResponse(b eventstore.ButtonConfig) buttonResponse {
	return buttonResponse{
		ButtonID:  b.ButtonID,
		Label:     b.Label,
		IconRef:   b.IconRef,
		Enabled:   s.sequencer.Allowed(b.ButtonID),
		UpdatedAt: b.UpdatedAt,
	}
}

func (s *Server) handleButtons(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	buttons, err := s.store.ListButtons(r.Context())
	if err != nil {
		s.writeEngineError(w, r, "list buttons failed", err)
		return
	}
	out := buttonsResponse{Buttons: make([]buttonResponse, 0, len(buttons))}
	for _, b := range buttons {
		out.Buttons = append(out.Buttons, s.toButtonResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleButton(w http.ResponseWriter, r *http.Request, rawID string) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	id, err := names.ParseButtonID(rawID)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if r.Method == http.MethodPut {
		var req buttonLabelRequest
		if !decodeJSONBody(w, r, &req, 4<<10) {
			return
		}
		if err := names.ValidateLabel(req.Label); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if !s.sequencer.Allowed(id) {
			writeAPIError(w, http.StatusBadRequest, "button "+strconv.Itoa(id)+" is not configured", nil)
			return
		}
		if err := s.store.SetButtonLabel(r.Context(), id, req.Label); err != nil {
			s.writeEngineError(w, r, "set button label failed", err, "button_id", id)
			return
		}
		s.logger.Info("button label updated", "button_id", id, "request_id", RequestIDFromContext(r.Context()))
		s.recordAudit(r, audit.Entry{
			ButtonID:  &id,
			Operation: audit.OperationButtonLabel,
			Summary:   "label set to " + strconv.Quote(req.Label),
			Metadata:  map[string]any{"label": req.Label},
		})
	}

	b, err := s.store.GetButton(r.Context(), id)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "button "+strconv.Itoa(id)+" not found", nil)
			return
		}
		s.writeEngineError(w, r, "get button failed", err, "button_id", id)
		return
	}
	writeJSON(w, http.StatusOK, s.toButtonResponse(b))
}

func (s *Server) handleButtonIcon(w http.ResponseWriter, r *http.Request, rawID string) {
	if !requireMethod(w, r, http.MethodGet, http.MethodPut, http.MethodDelete) {
		return
	}
	if !s.requireReady(w) {
		return
	}
	id, err := names.ParseButtonID(rawID)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	ctx := r.Context()
	b, err := s.store.GetButton(ctx, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			writeAPIError(w, http.StatusNotFound, "button "+strconv.Itoa(id)+" not found", nil)
			return
		}
		s.writeEngineError(w, r, "get button failed", err, "button_id", id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if b.IconRef == nil {
			writeAPIError(w, http.StatusNotFound, "button has no icon", nil)
			return
		}
		content, contentType, err := s.icons.Download(ctx, *b.IconRef)
		if err != nil {
			if errors.Is(err, icons.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "icon content not found", nil)
				return
			}
			s.writeInternalAPIError(w, r, "read icon failed", err, "button_id", id)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(content)

	case http.MethodPut:
		r.Body = http.MaxBytesReader(w, r.Body, icons.MaxBytes)
		defer r.Body.Close()
		content, err := io.ReadAll(r.Body)
		if err != nil {
			if isMaxBytesError(err) {
				writeAPIError(w, http.StatusRequestEntityTooLarge, "icon too large", nil)
				return
			}
			writeAPIError(w, http.StatusBadRequest, "read icon body failed", []string{err.Error()})
			return
		}
		ref, err := s.replaceIcon(ctx, id, content)
		if err != nil {
			switch {
			case errors.Is(err, icons.ErrInvalidIcon):
				writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
			case errors.Is(err, errIconBlob):
				s.writeInternalAPIError(w, r, "store icon failed", err, "button_id", id)
			default:
				s.writeEngineError(w, r, "set button icon failed", err, "button_id", id)
			}
			return
		}
		s.recordAudit(r, audit.Entry{
			ButtonID:  &id,
			Operation: audit.OperationButtonIconSet,
			Summary:   "icon set to " + ref,
			Metadata:  map[string]any{"iconRef": ref, "bytes": len(content)},
		})
		b.IconRef = &ref
		writeJSON(w, http.StatusOK, s.toButtonResponse(b))

	case http.MethodDelete:
		prev, err := s.clearIcon(ctx, id)
		if err != nil {
			s.writeEngineError(w, r, "clear button icon failed", err, "button_id", id)
			return
		}
		if prev == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.recordAudit(r, audit.Entry{
			ButtonID:  &id,
			Operation: audit.OperationButtonIconClear,
			Summary:   "icon cleared",
			Metadata:  map[string]any{"iconRef": prev},
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

var errIconBlob = errors.New("icon blob")

// replaceIcon stores content and points button id at it, releasing the blob
// the button referenced before. Icon mutations hold iconMu so a release never
// sees a blob another request is about to reference.
func (s *Server) replaceIcon(ctx context.Context, id int, content []byte) (string, error) {
	s.iconMu.Lock()
	defer s.iconMu.Unlock()

	b, err := s.store.GetButton(ctx, id)
	if err != nil {
		return "", err
	}
	ref, err := s.icons.Upload(ctx, content)
	if err != nil {
		if errors.Is(err, icons.ErrInvalidIcon) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", errIconBlob, err)
	}
	if err := s.store.SetButtonIcon(ctx, id, &ref); err != nil {
		return "", err
	}
	if b.IconRef != nil && *b.IconRef != ref {
		s.releaseIcon(ctx, *b.IconRef)
	}
	return ref, nil
}

// clearIcon unsets the icon of button id and returns the ref it had, or ""
// when it had none.
func (s *Server) clearIcon(ctx context.Context, id int) (string, error) {
	s.iconMu.Lock()
	defer s.iconMu.Unlock()

	b, err := s.store.GetButton(ctx, id)
	if err != nil {
		return "", err
	}
	if b.IconRef == nil {
		return "", nil
	}
	if err := s.store.SetButtonIcon(ctx, id, nil); err != nil {
		return "", err
	}
	s.releaseIcon(ctx, *b.IconRef)
	return *b.IconRef, nil
}

// releaseIcon deletes the blob once no button references it. Errors are
// logged only. Callers hold iconMu.
func (s *Server) releaseIcon(ctx context.Context, ref string) {
	buttons, err := s.store.ListButtons(ctx)
	if err != nil {
		s.logger.Warn("icon cleanup skipped", "ref", ref, "error", err)
		return
	}
	for _, b := range buttons {
		if b.IconRef != nil && *b.IconRef == ref {
			return
		}
	}
	if err := s.icons.Delete(ctx, ref); err != nil && !errors.Is(err, icons.ErrNotFound) {
		s.logger.Warn("icon cleanup failed", "ref", ref, "error", err)
	}
}
