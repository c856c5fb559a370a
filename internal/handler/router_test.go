package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatService "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/memory"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, _ []chat.Turn, text string, _ bot.Configuration) string {
	return text
}

func newTestRouter() http.Handler {
	bots := bot.NewPersistentStore(memory.New(), bot.Seed())
	chatSvc := chatService.NewService()
	return NewRouter(Services{
		Bots:         bots,
		Chat:         chatSvc,
		Conversation: conversation.NewService(chatSvc, bots, echoGenerator{}, nil, zerolog.Nop()),
		Identity:     "session_router",
		Logger:       zerolog.Nop(),
	})
}

func TestRouterMountsAPI(t *testing.T) {
	r := newTestRouter()

	for _, path := range []string{"/healthz", "/api/bot", "/api/providers", "/api/identity"} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestRouterOptionalRoutesAbsent(t *testing.T) {
	r := newTestRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/logging/entries", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/proxy/chat", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
