package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	modelchat "github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/chatdesk/backend/internal/service/identity"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/memory"
)

type scriptedGenerator struct {
	replies []string
}

func (g *scriptedGenerator) Generate(_ context.Context, _ []modelchat.Turn, _ string, _ bot.Configuration) string {
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply
}

type recordingArchiver struct {
	identities []string
}

func (a *recordingArchiver) Submit(_, _ string, _ bot.Configuration, identity string) {
	a.identities = append(a.identities, identity)
}

func setupRouter(replies ...string) (*chi.Mux, *chatservice.Service, *recordingArchiver) {
	chatSvc := chatservice.NewService()
	bots := bot.NewPersistentStore(memory.New(), bot.Seed())
	arch := &recordingArchiver{}
	convSvc := conversation.NewService(chatSvc, bots, &scriptedGenerator{replies: replies}, arch, zerolog.Nop())
	handler := New(chatSvc, convSvc, "session_default")

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc, arch
}

func postJSON(r http.Handler, path string, body any, header http.Header) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := postJSON(r, "/session", map[string]string{}, nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var session modelchat.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.ID
}

func TestSendMessageReturnsDecodedReply(t *testing.T) {
	r, _, arch := setupRouter("Welcome! {Flu Info | Mental Health}")
	sessionID := createSession(t, r)

	resp := postJSON(r, "/session/"+sessionID+"/messages", map[string]string{"content": "Hi"}, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got.Assistant.CleanText != "Welcome!" {
		t.Fatalf("unexpected clean text %q", got.Assistant.CleanText)
	}
	if len(got.Assistant.Options) != 2 || got.Assistant.Options[0] != "Flu Info" {
		t.Fatalf("unexpected options %v", got.Assistant.Options)
	}
	if got.Assistant.Content != "Welcome! {Flu Info | Mental Health}" {
		t.Fatalf("raw reply must be kept, got %q", got.Assistant.Content)
	}
	if len(arch.identities) != 1 || arch.identities[0] != "session_default" {
		t.Fatalf("expected default identity, got %v", arch.identities)
	}
}

func TestSendMessageUsesClientIdentity(t *testing.T) {
	r, _, arch := setupRouter("ok")
	sessionID := createSession(t, r)

	header := http.Header{}
	header.Set(identity.HeaderName, "session_client")
	resp := postJSON(r, "/session/"+sessionID+"/messages", map[string]string{"content": "Hi"}, header)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if arch.identities[0] != "session_client" {
		t.Fatalf("expected client identity, got %s", arch.identities[0])
	}
}

func TestSendMessageErrors(t *testing.T) {
	r, _, _ := setupRouter("ok")
	sessionID := createSession(t, r)

	if resp := postJSON(r, "/session/missing/messages", map[string]string{"content": "Hi"}, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if resp := postJSON(r, "/session/"+sessionID+"/messages", map[string]string{"content": "  "}, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSendMessageWhileInFlight(t *testing.T) {
	r, chatSvc, _ := setupRouter("ok")
	sessionID := createSession(t, r)

	release, err := chatSvc.BeginExchange(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("BeginExchange err: %v", err)
	}
	defer release()

	if resp := postJSON(r, "/session/"+sessionID+"/messages", map[string]string{"content": "Hi"}, nil); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestSelectOptionAndTranscript(t *testing.T) {
	r, _, _ := setupRouter("Welcome! {Flu Info | Mental Health}", "Flu season runs from October to May.")
	sessionID := createSession(t, r)

	postJSON(r, "/session/"+sessionID+"/messages", map[string]string{"content": "Hi"}, nil)

	if resp := postJSON(r, "/session/"+sessionID+"/choices", map[string]string{"option": "Dental"}, nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown option, got %d", resp.Code)
	}
	if resp := postJSON(r, "/session/"+sessionID+"/choices", map[string]string{"option": "Flu Info"}, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/session/"+sessionID+"/turns", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var turns []conversation.TranscriptTurn
	if err := json.NewDecoder(resp.Body).Decode(&turns); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}
	if turns[2].Content != "Flu Info" || turns[2].Role != modelchat.RoleUser {
		t.Fatalf("selected option must be recorded as a user turn, got %+v", turns[2])
	}
}

func TestIdentityEndpoint(t *testing.T) {
	r, _, _ := setupRouter("ok")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/identity", nil))

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if got["sessionIdentity"] != "session_default" {
		t.Fatalf("unexpected identity %q", got["sessionIdentity"])
	}
}
