package bot

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// Handler 机器人配置的HTTP处理器
type Handler struct {
	store bot.Store
}

// New 创建配置处理器
func New(store bot.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册配置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/bot", h.handleGetConfig)
	r.Put("/bot", h.handleUpdateConfig)
	r.Get("/providers", h.handleListProviders)
}

// configView hides the stored credential.
type configView struct {
	DisplayName      string       `json:"displayName"`
	ThemeID          string       `json:"themeId"`
	AvatarRef        string       `json:"avatarRef"`
	SystemPrompt     string       `json:"systemPrompt"`
	KnowledgeBase    string       `json:"knowledgeBase"`
	Provider         bot.Provider `json:"provider"`
	ModelID          string       `json:"modelId"`
	HasCredential    bool         `json:"hasCredential"`
	LoggingTargetURL string       `json:"loggingTargetUrl"`
}

func newConfigView(cfg bot.Configuration) configView {
	return configView{
		DisplayName:      cfg.DisplayName,
		ThemeID:          cfg.ThemeID,
		AvatarRef:        cfg.AvatarRef,
		SystemPrompt:     cfg.SystemPrompt,
		KnowledgeBase:    cfg.KnowledgeBase,
		Provider:         cfg.Provider,
		ModelID:          cfg.ModelID,
		HasCredential:    cfg.Credential != "",
		LoggingTargetURL: cfg.LoggingTargetURL,
	}
}

// updatePayload 只更新请求中出现的字段
type updatePayload struct {
	DisplayName      *string       `json:"displayName"`
	ThemeID          *string       `json:"themeId"`
	AvatarRef        *string       `json:"avatarRef"`
	SystemPrompt     *string       `json:"systemPrompt"`
	KnowledgeBase    *string       `json:"knowledgeBase"`
	Provider         *bot.Provider `json:"provider"`
	ModelID          *string       `json:"modelId"`
	Credential       *string       `json:"credential"`
	LoggingTargetURL *string       `json:"loggingTargetUrl"`
}

func (p updatePayload) apply(cfg bot.Configuration) bot.Configuration {
	setString(&cfg.DisplayName, p.DisplayName)
	setString(&cfg.ThemeID, p.ThemeID)
	setString(&cfg.AvatarRef, p.AvatarRef)
	setString(&cfg.SystemPrompt, p.SystemPrompt)
	setString(&cfg.KnowledgeBase, p.KnowledgeBase)
	setString(&cfg.Credential, p.Credential)
	setString(&cfg.LoggingTargetURL, p.LoggingTargetURL)

	// 切换服务商时模型先重置为默认值，再应用显式指定的模型
	if p.Provider != nil {
		cfg = cfg.WithProvider(*p.Provider)
	}
	setString(&cfg.ModelID, p.ModelID)
	return cfg
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// handleGetConfig 返回当前配置
func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Load(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, newConfigView(cfg))
}

// handleUpdateConfig 更新并持久化配置
func (h *Handler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var payload updatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := h.store.Load(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated := payload.apply(current)
	if err := h.store.Save(r.Context(), updated); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bot.ErrUnknownProvider) || errors.Is(err, bot.ErrModelNotInVocabulary) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, newConfigView(updated))
}

// handleListProviders 列出服务商及其可用模型
func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	type providerView struct {
		bot.ModelCatalog
		DefaultModel string `json:"defaultModel"`
	}

	catalogs := bot.Providers()
	out := make([]providerView, 0, len(catalogs))
	for _, c := range catalogs {
		out = append(out, providerView{ModelCatalog: c, DefaultModel: bot.DefaultModel(c.Provider)})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
