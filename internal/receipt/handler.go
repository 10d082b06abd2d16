package receipt

import (
	"encoding/json"
	"net/http"
	"strconv"

	"community-chat/internal/apperr"
	"community-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// MarkRead handles POST /api/conversations/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}

	if err := h.service.MarkRead(r.Context(), conversationID, p); err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unread handles GET /api/unread and, with ?conversation_id=, the
// per-conversation variant.
func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var (
		count int
		err   error
	)
	if raw := r.URL.Query().Get("conversation_id"); raw != "" {
		conversationID, perr := strconv.Atoi(raw)
		if perr != nil {
			http.Error(w, "invalid conversation id", http.StatusBadRequest)
			return
		}
		count, err = h.service.UnreadCount(r.Context(), conversationID, p)
	} else {
		count, err = h.service.TotalUnread(r.Context(), p)
	}
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread": count})
}
