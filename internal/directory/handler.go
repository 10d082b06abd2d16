package directory

import (
	"encoding/json"
	"net/http"
	"strconv"

	"community-chat/internal/apperr"
	"community-chat/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// Create handles POST /api/conversations: find-or-create for direct pairs,
// plain create for the group kinds.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Create(r.Context(), p, &req)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !res.Existing {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(res)
}

// List handles GET /api/conversations?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	summaries, err := h.service.List(r.Context(), p, limit, offset)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}
