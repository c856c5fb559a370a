// Package proxy exposes a server-side Gemini endpoint so browsers never hold the provider key.
package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/ai"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Generator forwards raw contents to the provider.
type Generator interface {
	Generate(ctx context.Context, model, key string, contents []ai.GeminiContent) (int, []byte, error)
}

// Handler 服务端代理处理器
type Handler struct {
	gen          Generator
	apiKey       string
	defaultModel string
	logger       zerolog.Logger
}

// New 创建代理处理器。apiKey 为空时所有请求都返回 500
func New(gen Generator, apiKey, defaultModel string, logger zerolog.Logger) *Handler {
	return &Handler{
		gen:          gen,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		logger:       logger.With().Str("component", "proxy").Logger(),
	}
}

// RegisterRoutes 注册代理路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/proxy/chat", h.handleChat)
}

type historyItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	History []historyItem `json:"history"`
	Message string        `json:"message"`
	Model   string        `json:"model"`
}

// buildContents maps prior turns onto the provider's user/model roles and appends the new message.
func buildContents(req chatRequest) []ai.GeminiContent {
	contents := make([]ai.GeminiContent, 0, len(req.History)+1)
	for _, item := range req.History {
		role := "user"
		switch item.Role {
		case string(chat.RoleSystem):
			continue
		case string(chat.RoleAssistant), "model":
			role = "model"
		}
		contents = append(contents, ai.GeminiContent{Role: role, Parts: []ai.GeminiPart{{Text: item.Content}}})
	}
	return append(contents, ai.GeminiContent{Role: "user", Parts: []ai.GeminiPart{{Text: req.Message}}})
}

// handleChat 将请求转发给 Gemini 并原样返回响应
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		utils.RespondError(w, http.StatusInternalServerError, "server is missing the provider API key")
		return
	}

	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	model := payload.Model
	if model == "" {
		model = h.defaultModel
	}

	status, body, err := h.gen.Generate(r.Context(), model, h.apiKey, buildContents(payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("model", model).Msg("proxy call failed")
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write proxy response")
	}
}
