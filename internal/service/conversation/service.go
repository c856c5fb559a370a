// Package conversation runs one user exchange end to end: record the user turn, ask the
// provider, record the reply, and hand the pair to the archive in the background.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/chatdesk/backend/internal/service/chat"
	"github.com/zhouzirui/chatdesk/backend/internal/service/choice"
)

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrUnknownOption = errors.New("option is not offered by the latest reply")
)

// Generator produces a reply text; failures are reported inside the text.
type Generator interface {
	Generate(ctx context.Context, history []chat.Turn, latestUserText string, cfg bot.Configuration) string
}

// Archiver accepts finished exchanges without blocking.
type Archiver interface {
	Submit(userMessage, botResponse string, cfg bot.Configuration, identity string)
}

// Exchange is the result of one send.
type Exchange struct {
	User      chat.Turn   `json:"user"`
	Assistant chat.Turn   `json:"assistant"`
	Menu      choice.Menu `json:"menu"`
}

// TranscriptTurn is a turn prepared for rendering. Assistant turns carry their decoded menu.
type TranscriptTurn struct {
	chat.Turn
	CleanText string   `json:"cleanText"`
	Options   []string `json:"options"`
}

// Service wires the session store, provider adapter and logging pipeline together.
type Service struct {
	sessions *chatservice.Service
	bots     bot.Store
	llm      Generator
	archive  Archiver
	logger   zerolog.Logger
}

// NewService creates the conversation service.
func NewService(sessions *chatservice.Service, bots bot.Store, llm Generator, archive Archiver, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		bots:     bots,
		llm:      llm,
		archive:  archive,
		logger:   logger.With().Str("component", "conversation").Logger(),
	}
}

// Send appends text as a user turn and the provider's reply as an assistant turn. A second Send
// for the same session fails with chatservice.ErrExchangeInFlight until this one returns.
func (s *Service) Send(ctx context.Context, sessionID, text, identity string) (Exchange, error) {
	if strings.TrimSpace(text) == "" {
		return Exchange{}, ErrEmptyMessage
	}

	release, err := s.sessions.BeginExchange(ctx, sessionID)
	if err != nil {
		return Exchange{}, err
	}
	defer release()

	cfg, err := s.bots.Load(ctx)
	if err != nil {
		return Exchange{}, fmt.Errorf("load bot configuration: %w", err)
	}

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return Exchange{}, err
	}

	userTurn, err := s.sessions.AppendUserTurn(ctx, sessionID, text)
	if err != nil {
		return Exchange{}, err
	}

	reply := s.llm.Generate(ctx, history, text, cfg)

	assistantTurn, err := s.sessions.AppendAssistantTurn(ctx, sessionID, reply)
	if err != nil {
		return Exchange{}, err
	}

	if s.archive != nil {
		s.archive.Submit(text, reply, cfg, identity)
	}

	s.logger.Info().
		Str("session", sessionID).
		Str("provider", string(cfg.Provider)).
		Int("history", len(history)).
		Msg("exchange completed")

	return Exchange{User: userTurn, Assistant: assistantTurn, Menu: choice.Decode(reply)}, nil
}

// SelectOption re-submits one of the options of the latest assistant turn as the user's text.
func (s *Service) SelectOption(ctx context.Context, sessionID, option, identity string) (Exchange, error) {
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return Exchange{}, err
	}

	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != chat.RoleAssistant {
			continue
		}
		if !choice.Decode(history[i].Content).Contains(option) {
			return Exchange{}, fmt.Errorf("%w: %q", ErrUnknownOption, option)
		}
		return s.Send(ctx, sessionID, option, identity)
	}
	return Exchange{}, fmt.Errorf("%w: %q", ErrUnknownOption, option)
}

// Transcript returns the session's turns with assistant menus decoded.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]TranscriptTurn, error) {
	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]TranscriptTurn, 0, len(history))
	for _, turn := range history {
		view := TranscriptTurn{Turn: turn, CleanText: turn.Content, Options: []string{}}
		if turn.Role == chat.RoleAssistant {
			menu := choice.Decode(turn.Content)
			view.CleanText = menu.CleanText
			view.Options = menu.Options
		}
		out = append(out, view)
	}
	return out, nil
}
