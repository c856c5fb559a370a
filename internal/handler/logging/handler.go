package logging

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatHandler "github.com/zhouzirui/chatdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/formlog"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Pipeline 对话日志管道
type Pipeline interface {
	TestConnection(ctx context.Context, rawLink, identity string) formlog.Diagnostic
	Entries() []chat.LogEntry
}

// Handler 日志配置与诊断的HTTP处理器
type Handler struct {
	pipeline Pipeline
	identity string
}

// New 创建日志处理器
func New(pipeline Pipeline, defaultIdentity string) *Handler {
	return &Handler{pipeline: pipeline, identity: defaultIdentity}
}

// RegisterRoutes 注册日志相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/logging/test", h.handleTestConnection)
	r.Get("/logging/entries", h.handleEntries)
}

// handleTestConnection 解析表单链接并发送一条测试记录
func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Link string `json:"link"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	diag := h.pipeline.TestConnection(r.Context(), payload.Link, chatHandler.IdentityFor(r, h.identity))
	utils.RespondJSON(w, http.StatusOK, diag)
}

// handleEntries 返回最近投递的日志，最新的在前
func (h *Handler) handleEntries(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.pipeline.Entries())
}
