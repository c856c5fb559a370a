package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	botHandler "github.com/zhouzirui/chatdesk/backend/internal/handler/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/logging"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/proxy"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/stream"
	"github.com/zhouzirui/chatdesk/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/chatdesk/backend/internal/middleware"
	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	chatService "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/pkg/utils"
)

// ProxyOptions enables the server-side provider endpoint when Generator is set.
type ProxyOptions struct {
	Generator    proxy.Generator
	APIKey       string
	DefaultModel string
}

// Services groups everything the HTTP layer depends on.
type Services struct {
	Bots         bot.Store
	Chat         *chatService.Service
	Conversation *conversation.Service
	Logging      logging.Pipeline
	Identity     string
	Proxy        ProxyOptions
	Logger       zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(svc.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		botHandler.New(svc.Bots).RegisterRoutes(api)
		chat.New(svc.Chat, svc.Conversation, svc.Identity).RegisterRoutes(api)
		stream.New(svc.Conversation, svc.Bots, svc.Identity, svc.Logger).RegisterRoutes(api)
		ws.NewWebSocketHandler(svc.Chat, svc.Conversation, svc.Identity, svc.Logger).RegisterWebSocketRoutes(api)

		if svc.Logging != nil {
			logging.New(svc.Logging, svc.Identity).RegisterRoutes(api)
		}

		if svc.Proxy.Generator != nil {
			proxy.New(svc.Proxy.Generator, svc.Proxy.APIKey, svc.Proxy.DefaultModel, svc.Logger).RegisterRoutes(api)
		}
	})

	return r
}
