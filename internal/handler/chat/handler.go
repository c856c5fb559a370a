package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/service/identity"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	convSvc  *conversation.Service
	identity string
}

// New 创建聊天处理器。defaultIdentity 在客户端未携带身份时使用
func New(chatSvc *chatService.Service, convSvc *conversation.Service, defaultIdentity string) *Handler {
	return &Handler{
		chatSvc:  chatSvc,
		convSvc:  convSvc,
		identity: defaultIdentity,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/identity", h.handleIdentity)
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}/turns", h.handleTranscript)
	r.Post("/session/{sessionID}/messages", h.handleSendMessage)
	r.Post("/session/{sessionID}/choices", h.handleSelectOption)
}

// IdentityFor 返回本次请求使用的会话身份
func IdentityFor(r *http.Request, fallback string) string {
	return identity.Pick(r.Header.Get(identity.HeaderName), fallback)
}

// ErrorStatus 将业务错误映射为HTTP状态码
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrExchangeInFlight):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrEmptyMessage), errors.Is(err, conversation.ErrUnknownOption):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// exchangeResponse 一次发送的结果，助手回复已拆分出选项
type exchangeResponse struct {
	User      conversation.TranscriptTurn `json:"user"`
	Assistant conversation.TranscriptTurn `json:"assistant"`
}

func newExchangeResponse(ex conversation.Exchange) exchangeResponse {
	return exchangeResponse{
		User: conversation.TranscriptTurn{
			Turn:      ex.User,
			CleanText: ex.User.Content,
			Options:   []string{},
		},
		Assistant: conversation.TranscriptTurn{
			Turn:      ex.Assistant,
			CleanText: ex.Menu.CleanText,
			Options:   ex.Menu.Options,
		},
	}
}

// handleIdentity 返回服务端的默认会话身份
func (h *Handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"sessionIdentity": IdentityFor(r, h.identity)})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleTranscript 返回会话的全部轮次
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := h.convSvc.Transcript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, turns)
}

// handleSendMessage 发送用户消息并返回助手回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ex, err := h.convSvc.Send(r.Context(), chi.URLParam(r, "sessionID"), payload.Content, IdentityFor(r, h.identity))
	if err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, newExchangeResponse(ex))
}

// handleSelectOption 选择上一条回复中的选项
func (h *Handler) handleSelectOption(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Option string `json:"option"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ex, err := h.convSvc.SelectOption(r.Context(), chi.URLParam(r, "sessionID"), payload.Option, IdentityFor(r, h.identity))
	if err != nil {
		utils.RespondError(w, ErrorStatus(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, newExchangeResponse(ex))
}
