package presence

import (
	"encoding/json"
	"net/http"
	"strconv"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"
	"community-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func conversationID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

// SetTyping handles POST /api/conversations/{id}/typing.
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := conversationID(r)
	if !ok {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := h.service.SetTyping(r.Context(), id, p); err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearTyping handles DELETE /api/conversations/{id}/typing.
func (h *Handler) ClearTyping(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := conversationID(r)
	if !ok {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	if err := h.service.ClearTyping(r.Context(), id, p); err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WhoIsTyping handles GET /api/conversations/{id}/typing.
func (h *Handler) WhoIsTyping(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := conversationID(r)
	if !ok {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	typists, err := h.service.WhoIsTyping(r.Context(), id, p)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(typists)
}

// SetPresence handles PUT /api/presence with {"status": "..."}.
func (h *Handler) SetPresence(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.SetPresence(r.Context(), p, req.Status); err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPresence handles GET /api/presence?participant=kind:id, defaulting to
// the caller's own record.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	target := p
	if raw := r.URL.Query().Get("participant"); raw != "" {
		parsed, err := identity.Parse(raw)
		if err != nil {
			http.Error(w, "invalid participant", http.StatusBadRequest)
			return
		}
		target = parsed
	}

	rec, err := h.service.GetPresence(r.Context(), target)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}
