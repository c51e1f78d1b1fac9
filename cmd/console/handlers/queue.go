package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kimhsiao/fitnix/console/internal/models"
	"github.com/kimhsiao/fitnix/console/internal/sync/queue"
)

// QueueStore is the part of the offline action store the handler uses.
type QueueStore interface {
	Enqueue(ctx context.Context, action queue.NewAction) (int64, error)
	ListAll(ctx context.Context) ([]models.QueuedAction, error)
	Remove(ctx context.Context, id int64) error
	Clear(ctx context.Context) error
}

// QueueHandler exposes the offline action queue.
type QueueHandler struct {
	store QueueStore
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(store QueueStore) *QueueHandler {
	return &QueueHandler{store: store}
}

// List handles GET /queue.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	actions, err := h.store.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"actions": actions,
		"total":   len(actions),
	})
}

// Enqueue handles POST /queue.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Method string          `json:"method"`
		URL    string          `json:"url"`
		Body   json.RawMessage `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	action := queue.NewAction{Method: request.Method, URL: request.URL}
	if len(request.Body) > 0 {
		action.Body = request.Body
	}
	id, err := h.store.Enqueue(r.Context(), action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"id": id})
}

// Remove handles DELETE /queue/{id}.
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "id must be a positive integer")
		return
	}
	if err := h.store.Remove(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /queue.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
