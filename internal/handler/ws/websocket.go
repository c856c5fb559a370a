package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	chatHandler "github.com/zhouzirui/chatdesk/backend/internal/handler/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler WebSocket聊天处理器
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	convSvc  *conversation.Service
	identity string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, convSvc *conversation.Service, defaultIdentity string, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:  chatSvc,
		convSvc:  convSvc,
		identity: defaultIdentity,
		logger:   logger.With().Str("component", "websocket").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

// ChoiceMessage 选项消息
type ChoiceMessage struct {
	Option string `json:"option"`
}

// ConfigMessage 连接级配置
type ConfigMessage struct {
	Identity string `json:"identity"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type connectionState struct {
	sessionID string
	identity  string
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.chatSvc.GetSession(r.Context(), sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	state := &connectionState{
		sessionID: sessionID,
		identity:  chatHandler.IdentityFor(r, h.identity),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Info().Str("session", sessionID).Msg("new connection")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.sendInfo(conn, sessionID, map[string]any{"type": "connected"})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Str("session", sessionID).Msg("read error")
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, "session mismatch")
			continue
		}

		h.handleMessage(ctx, conn, state, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			h.sendError(conn, "invalid text payload")
			return
		}
		h.respond(conn, state, func() (conversation.Exchange, error) {
			return h.convSvc.Send(ctx, state.sessionID, text.Text, state.identity)
		})
	case "choice":
		var choice ChoiceMessage
		if err := json.Unmarshal(msg.Data, &choice); err != nil {
			h.sendError(conn, "invalid choice payload")
			return
		}
		h.respond(conn, state, func() (conversation.Exchange, error) {
			return h.convSvc.SelectOption(ctx, state.sessionID, choice.Option, state.identity)
		})
	case "config":
		var cfg ConfigMessage
		if err := json.Unmarshal(msg.Data, &cfg); err != nil {
			h.sendError(conn, "invalid config payload")
			return
		}
		if cfg.Identity != "" {
			state.identity = cfg.Identity
		}
		h.sendInfo(conn, state.sessionID, map[string]any{"type": "config", "identity": state.identity})
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *WebSocketHandler) respond(conn *websocket.Conn, state *connectionState, run func() (conversation.Exchange, error)) {
	ex, err := run()
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendInfo(conn, state.sessionID, map[string]any{
		"type": "user",
		"id":   ex.User.ID,
		"text": ex.User.Content,
	})
	h.sendInfo(conn, state.sessionID, map[string]any{
		"type":    "assistant",
		"id":      ex.Assistant.ID,
		"text":    ex.Menu.CleanText,
		"options": ex.Menu.Options,
	})
}

func (h *WebSocketHandler) sendInfo(conn *websocket.Conn, sessionID string, data map[string]any) {
	msg := outgoingMessage{
		Type:      "result",
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("write info failed")
	}
}

func (h *WebSocketHandler) sendError(conn *websocket.Conn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("write error failed")
	}
}

// pingLoop 定期发送ping消息
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
