package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/avdeyev/mediq/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SessionHandler serves the session administration endpoints.
type SessionHandler struct {
	repo store.Repository
}

// NewSessionHandler creates a session admin handler.
func NewSessionHandler(repo store.Repository) *SessionHandler {
	return &SessionHandler{repo: repo}
}

// RegisterRoutes registers session admin routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Patch("/{id}", h.HandleRename)
		r.Delete("/{id}", h.HandleDelete)
		r.Delete("/", h.HandleClearAll)
	})
}

// HandleList returns all known sessions, most recent first.
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

type createSessionRequest struct {
	Title string `json:"title"`
}

// HandleCreate creates a new session with a server-generated id.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		req.Title = "New session"
	}

	id := uuid.NewString()
	if err := h.repo.CreateSession(r.Context(), id, req.Title); err != nil {
		slog.Error("failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	slog.Info("session created", "session_id", id, "title", req.Title)
	JSON(w, http.StatusCreated, map[string]string{"id": id, "title": req.Title})
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// HandleRename updates a session title.
func (h *SessionHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.RenameSession(r.Context(), id, req.Title); err != nil {
		slog.Warn("failed to rename session", "session_id", id, "error", err)
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"id": id, "title": req.Title})
}

// HandleDelete removes a session and its messages.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.DeleteSession(r.Context(), id); err != nil {
		slog.Error("failed to delete session", "session_id", id, "error", err)
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	slog.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearAll removes every session and message.
func (h *SessionHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.ClearAll(r.Context()); err != nil {
		slog.Error("failed to clear history", "error", err)
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	slog.Info("all chat history cleared")
	w.WriteHeader(http.StatusNoContent)
}
