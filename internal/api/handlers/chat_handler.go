package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/services"
)

const maxChatBody = 64 << 10

type ChatHandler struct {
	chat *services.ChatService
	log  *zap.Logger
}

func NewChatHandler(chat *services.ChatService, log *zap.Logger) *ChatHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatHandler{chat: chat, log: log}
}

type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if err := decodeBody(w, r, maxChatBody, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Ask answers a widget question in one JSON response.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	ans, err := h.chat.Ask(r.Context(), chi.URLParam(r, "botID"), req.SessionID, req.Question, nil)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// Stream answers over Server-Sent Events: one "token" event per model token,
// then "done" with the full answer, or "error".
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(w, r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	botID := chi.URLParam(r, "botID")
	ans, err := h.chat.Ask(r.Context(), botID, req.SessionID, req.Question, func(tok string) error {
		return sendEvent(w, flusher, "token", tok)
	})
	if err != nil {
		if r.Context().Err() != nil {
			h.log.Debug("chat stream client gone", zap.String("bot_id", botID))
			return
		}
		_, msg := statusFor(err)
		if _, ok := core.KindOf(err); !ok {
			h.log.Error("chat stream failed", zap.String("bot_id", botID), zap.Error(err))
		}
		_ = sendEvent(w, flusher, "error", map[string]string{"error": msg})
		return
	}
	_ = sendEvent(w, flusher, "done", ans)
}

func sendEvent(w http.ResponseWriter, f http.Flusher, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	f.Flush()
	return nil
}
