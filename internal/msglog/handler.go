package msglog

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

// Send handles POST /api/conversations/{id}/messages.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
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

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ConversationID = conversationID

	m, err := h.service.Send(r.Context(), p, &req)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

// History handles GET /api/conversations/{id}/messages?limit=&offset=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
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

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.service.Page(r.Context(), p, conversationID, limit, offset)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	if messages == nil {
		messages = []Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

// Edit handles PATCH /api/messages/{id}.
func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	messageID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.service.Edit(r.Context(), p, messageID, req.Body)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// Delete handles DELETE /api/messages/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	messageID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid message id", http.StatusBadRequest)
		return
	}

	if err := h.service.Delete(r.Context(), p, messageID); err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/messages/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.ParticipantFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.service.Search(r.Context(), p, r.URL.Query().Get("q"), limit)
	if err != nil {
		http.Error(w, apperr.Message(err), apperr.HTTPStatus(err))
		return
	}
	if hits == nil {
		hits = []SearchHit{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hits)
}
