package notify

import (
	"encoding/json"
	"net/http"
	"strconv"

	"community-chat/internal/apperr"
	"community-chat/internal/middleware"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// List handles GET /api/notifications?limit=&offset=. Read/dismiss
// lifecycle lives outside the engine; this is just the fan-out's read
// side.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.store.ListForRecipient(r.Context(), p, limit, offset)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	if notifications == nil {
		notifications = []Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}
