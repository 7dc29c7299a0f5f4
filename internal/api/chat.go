package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avdeyev/mediq/internal/chat"
	"github.com/avdeyev/mediq/internal/domain"
	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize is the maximum allowed chat request body (1MB).
const maxRequestBodySize = 1 << 20

// lineBreak replaces raw newlines in streamed fragments so each SSE data
// event stays a single line. The buffered response keeps real newlines.
const lineBreak = "<br>"

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	svc *chat.Service
}

// NewChatHandler creates a chat handler around the turn controller.
func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// RegisterRoutes registers the chat endpoint.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/get", h.HandleChat)
}

type chatRequest struct {
	Msg       string `json:"msg"`
	SessionID string `json:"session_id"`
	Stream    *bool  `json:"stream"`
}

// HandleChat handles POST /get. The default response is an event stream of
// completion fragments; {"stream": false} buffers the reply into a single
// JSON response instead.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, msgMissingInput)
		return
	}
	if req.Msg == "" {
		slog.Warn("chat request missing msg")
		Error(w, http.StatusBadRequest, msgMissingInput)
		return
	}
	if req.SessionID == "" {
		req.SessionID = domain.DefaultSessionID
	}

	slog.Info("chat request received",
		"session_id", req.SessionID,
		"message_length", len(req.Msg),
	)

	if req.Stream != nil && !*req.Stream {
		h.respondBuffered(w, r, req)
		return
	}
	h.respondStreaming(w, r, req)
}

// respondBuffered drains the whole completion before answering.
func (h *ChatHandler) respondBuffered(w http.ResponseWriter, r *http.Request, req chatRequest) {
	reply, err := h.svc.Turn(r.Context(), req.SessionID, req.Msg, nil)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			Error(w, http.StatusBadRequest, msgMissingInput)
			return
		}
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"response": reply})
}

// respondStreaming forwards completion fragments as SSE data events. Errors
// after the stream opens surface as a terminal error event so the client's
// read loop terminates cleanly.
func (h *ChatHandler) respondStreaming(w http.ResponseWriter, r *http.Request, req chatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emit := func(fragment string) error {
		fragment = strings.ReplaceAll(fragment, "\n", lineBreak)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", fragment); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if _, err := h.svc.Turn(r.Context(), req.SessionID, req.Msg, emit); err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			Error(w, http.StatusBadRequest, msgMissingInput)
			return
		}
		if _, writeErr := fmt.Fprintf(w, "data: [error] %s\n\n", msgInternalError); writeErr != nil {
			slog.Warn("failed to write SSE error event", "error", writeErr)
			return
		}
		flusher.Flush()
	}
}
