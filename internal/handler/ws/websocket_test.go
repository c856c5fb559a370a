package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/memory"
)

type menuGenerator struct{}

func (menuGenerator) Generate(_ context.Context, _ []chat.Turn, text string, _ bot.Configuration) string {
	if text == "Flu Info" {
		return "Flu season runs from October to May."
	}
	return "Welcome! {Flu Info | Mental Health}"
}

type received struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()
	chatSvc := chatservice.NewService()
	bots := bot.NewPersistentStore(memory.New(), bot.Seed())
	convSvc := conversation.NewService(chatSvc, bots, menuGenerator{}, nil, zerolog.Nop())

	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	NewWebSocketHandler(chatSvc, convSvc, "session_ws", zerolog.Nop()).RegisterWebSocketRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello received
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Data["type"])
	return conn, session.ID
}

func TestTextThenChoice(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "data": map[string]string{"text": "Hi"}}))

	var user, assistant received
	require.NoError(t, conn.ReadJSON(&user))
	require.NoError(t, conn.ReadJSON(&assistant))
	assert.Equal(t, "user", user.Data["type"])
	assert.Equal(t, "Hi", user.Data["text"])
	assert.Equal(t, "Welcome!", assistant.Data["text"])
	assert.Equal(t, []any{"Flu Info", "Mental Health"}, assistant.Data["options"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "choice", "data": map[string]string{"option": "Flu Info"}}))
	require.NoError(t, conn.ReadJSON(&user))
	require.NoError(t, conn.ReadJSON(&assistant))
	assert.Equal(t, "Flu Info", user.Data["text"])
	assert.Equal(t, "Flu season runs from October to May.", assistant.Data["text"])
}

func TestUnknownTypeAndMismatch(t *testing.T) {
	conn, _ := dial(t)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio"}))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "sessionId": "other", "data": map[string]string{"text": "Hi"}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "session mismatch", msg.Data["message"])
}

func TestUnknownSessionIsRejected(t *testing.T) {
	chatSvc := chatservice.NewService()
	r := chi.NewRouter()
	NewWebSocketHandler(chatSvc, nil, "", zerolog.Nop()).RegisterWebSocketRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/ws/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
