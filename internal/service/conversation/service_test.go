package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/storage/memory"
)

type generateCall struct {
	history []chat.Turn
	text    string
	cfg     bot.Configuration
}

type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	calls   []generateCall
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, history []chat.Turn, text string, cfg bot.Configuration) string {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{history: history, text: text, cfg: cfg})
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply
}

type archived struct {
	user, bot, identity string
	cfg                 bot.Configuration
}

type fakeArchiver struct {
	mu    sync.Mutex
	items []archived
}

func (f *fakeArchiver) Submit(user, botResponse string, cfg bot.Configuration, identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, archived{user: user, bot: botResponse, identity: identity, cfg: cfg})
}

func setup(t *testing.T, gen *fakeGenerator) (*Service, *chatservice.Service, bot.Store, *fakeArchiver, string) {
	t.Helper()
	sessions := chatservice.NewService()
	bots := bot.NewPersistentStore(memory.New(), bot.Seed())
	arch := &fakeArchiver{}
	svc := NewService(sessions, bots, gen, arch, zerolog.Nop())

	session, err := sessions.CreateSession(context.Background())
	require.NoError(t, err)
	return svc, sessions, bots, arch, session.ID
}

func TestSendThenSelectOption(t *testing.T) {
	gen := &fakeGenerator{replies: []string{
		"Welcome! {Flu Info | Mental Health}",
		"Flu season runs from October to May.",
	}}
	svc, _, _, arch, sessionID := setup(t, gen)
	ctx := context.Background()

	first, err := svc.Send(ctx, sessionID, "Hi", "session_dev")
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", first.Menu.CleanText)
	assert.Equal(t, []string{"Flu Info", "Mental Health"}, first.Menu.Options)
	assert.Equal(t, "Welcome! {Flu Info | Mental Health}", first.Assistant.Content)

	second, err := svc.SelectOption(ctx, sessionID, "Flu Info", "session_dev")
	require.NoError(t, err)
	assert.Equal(t, "Flu Info", second.User.Content)
	assert.Equal(t, chat.RoleUser, second.User.Role)
	assert.False(t, second.Menu.HasOptions())

	require.Len(t, gen.calls, 2)
	assert.Empty(t, gen.calls[0].history)
	require.Len(t, gen.calls[1].history, 2)
	assert.Equal(t, "Hi", gen.calls[1].history[0].Content)
	assert.Equal(t, "Welcome! {Flu Info | Mental Health}", gen.calls[1].history[1].Content)
	assert.Equal(t, "Flu Info", gen.calls[1].text)

	require.Len(t, arch.items, 2)
	assert.Equal(t, archived{user: "Hi", bot: "Welcome! {Flu Info | Mental Health}", identity: "session_dev", cfg: bot.Seed()}, arch.items[0])

	transcript, err := svc.Transcript(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, transcript, 4)
	assert.Equal(t, "Welcome!", transcript[1].CleanText)
	assert.Equal(t, []string{"Flu Info", "Mental Health"}, transcript[1].Options)
	assert.Equal(t, "Flu Info", transcript[2].CleanText)
	assert.Empty(t, transcript[2].Options)
}

func TestSelectOptionRejectsUnknownOption(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"Welcome! {Flu Info | Mental Health}"}}
	svc, _, _, _, sessionID := setup(t, gen)
	ctx := context.Background()

	_, err := svc.SelectOption(ctx, sessionID, "Flu Info", "id")
	assert.ErrorIs(t, err, ErrUnknownOption)

	_, err = svc.Send(ctx, sessionID, "Hi", "id")
	require.NoError(t, err)

	_, err = svc.SelectOption(ctx, sessionID, "Dental", "id")
	assert.ErrorIs(t, err, ErrUnknownOption)
	assert.Len(t, gen.calls, 1)
}

func TestSendRejectsEmptyText(t *testing.T) {
	svc, sessions, _, _, sessionID := setup(t, &fakeGenerator{replies: []string{"x"}})

	_, err := svc.Send(context.Background(), sessionID, "   ", "id")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	history, _ := sessions.History(context.Background(), sessionID)
	assert.Empty(t, history)
}

func TestSendUnknownSession(t *testing.T) {
	svc, _, _, _, _ := setup(t, &fakeGenerator{replies: []string{"x"}})
	_, err := svc.Send(context.Background(), "missing", "Hi", "id")
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestSecondSendWhileInFlightIsRejected(t *testing.T) {
	gen := &fakeGenerator{
		replies: []string{"done"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc, sessions, _, _, sessionID := setup(t, gen)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, sessionID, "first", "id")
		errCh <- err
	}()

	select {
	case <-gen.entered:
	case <-time.After(time.Second):
		t.Fatal("first send never reached the provider")
	}

	_, err := svc.Send(ctx, sessionID, "second", "id")
	assert.ErrorIs(t, err, chatservice.ErrExchangeInFlight)

	close(gen.block)
	require.NoError(t, <-errCh)

	history, _ := sessions.History(ctx, sessionID)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
}

func TestSendUsesConfigurationSnapshot(t *testing.T) {
	gen := &fakeGenerator{
		replies: []string{"ok"},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc, _, bots, arch, sessionID := setup(t, gen)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, sessionID, "Hi", "id")
		errCh <- err
	}()
	<-gen.entered

	edited := bot.Seed().WithProvider(bot.ProviderOpenAI)
	edited.DisplayName = "Edited mid-flight"
	require.NoError(t, bots.Save(ctx, edited))

	close(gen.block)
	require.NoError(t, <-errCh)

	assert.Equal(t, bot.Seed(), gen.calls[0].cfg)
	assert.Equal(t, bot.Seed(), arch.items[0].cfg)
}

func TestFailureReplyStillRecorded(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"⚠️ Network Error: dial tcp: refused"}}
	svc, sessions, _, arch, sessionID := setup(t, gen)

	ex, err := svc.Send(context.Background(), sessionID, "Hi", "id")
	require.NoError(t, err)
	assert.Equal(t, chat.RoleAssistant, ex.Assistant.Role)

	history, _ := sessions.History(context.Background(), sessionID)
	assert.Len(t, history, 2)
	assert.Len(t, arch.items, 1)
}
