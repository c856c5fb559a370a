package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	chatHandler "github.com/zhouzirui/chatdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Handler delivers one exchange as a sequence of Server-Sent Events.
type Handler struct {
	convSvc  *conversation.Service
	bots     bot.Store
	identity string
	logger   zerolog.Logger
}

// New creates a new stream handler
func New(convSvc *conversation.Service, bots bot.Store, defaultIdentity string, logger zerolog.Logger) *Handler {
	return &Handler{
		convSvc:  convSvc,
		bots:     bots,
		identity: defaultIdentity,
		logger:   logger.With().Str("component", "stream").Logger(),
	}
}

// StreamResponse represents one SSE event
type StreamResponse struct {
	Event     string   `json:"event"`
	Content   string   `json:"content,omitempty"`
	Options   []string `json:"options,omitempty"`
	SessionID string   `json:"sessionId,omitempty"`
	Finished  bool     `json:"finished,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// RegisterRoutes 注册流式接口
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		userMessage := r.URL.Query().Get("message")

		if userMessage == "" {
			utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
			return
		}

		identity := chatHandler.IdentityFor(r, h.identity)
		if err := h.HandleStreamRequest(r.Context(), w, sessionID, userMessage, identity); err != nil {
			h.logger.Warn().Err(err).Str("session", sessionID).Msg("stream request failed")
		}
	})
}

// HandleStreamRequest runs one exchange and reports it as start, message, choices and end events.
// Failures after the headers are written are reported as an error event.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, userMessage, identity string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	cfg, err := h.bots.Load(ctx)
	if err != nil {
		h.sendSSEError(w, flusher, sessionID, fmt.Sprintf("failed to load bot configuration: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "start",
		SessionID: sessionID,
		Content:   cfg.DisplayName,
	})

	ex, err := h.convSvc.Send(ctx, sessionID, userMessage, identity)
	if err != nil {
		h.sendSSEError(w, flusher, sessionID, err.Error())
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   ex.Menu.CleanText,
	})

	if ex.Menu.HasOptions() {
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "choices",
			SessionID: sessionID,
			Options:   ex.Menu.Options,
		})
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "end",
		SessionID: sessionID,
		Finished:  true,
	})

	h.logger.Info().Str("session", sessionID).Int("options", len(ex.Menu.Options)).Msg("stream completed")
	return nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{
		Event:     "error",
		SessionID: sessionID,
		Error:     errorMsg,
	})
}
