package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrExchangeInFlight = errors.New("a reply is still being generated for this session")
)

// Service holds the append-only transcript of every session.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
	inFlight map[string]bool
	now      func() time.Time
}

// NewService bootstraps the in-memory session store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		turns:    make(map[string][]chat.Turn),
		inFlight: make(map[string]bool),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an anonymous session.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]chat.Turn, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// AppendUserTurn records text typed or selected by the user.
func (s *Service) AppendUserTurn(ctx context.Context, sessionID, text string) (chat.Turn, error) {
	return s.appendTurn(ctx, sessionID, chat.RoleUser, text)
}

// AppendAssistantTurn records a raw provider reply, choice menu included.
func (s *Service) AppendAssistantTurn(ctx context.Context, sessionID, text string) (chat.Turn, error) {
	return s.appendTurn(ctx, sessionID, chat.RoleAssistant, text)
}

// AppendSystemTurn records a system notice in the transcript.
func (s *Service) AppendSystemTurn(ctx context.Context, sessionID, text string) (chat.Turn, error) {
	return s.appendTurn(ctx, sessionID, chat.RoleSystem, text)
}

func (s *Service) appendTurn(_ context.Context, sessionID string, role chat.Role, text string) (chat.Turn, error) {
	// Version 7 ids sort by creation time and stay unique within the same millisecond.
	id, err := uuid.NewV7()
	if err != nil {
		return chat.Turn{}, fmt.Errorf("generate turn id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return chat.Turn{}, ErrSessionNotFound
	}

	turn := chat.Turn{
		ID:        id.String(),
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		CreatedAt: s.now(),
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return turn, nil
}

// History returns a copy of the session's turns in creation order.
func (s *Service) History(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// BeginExchange marks the session busy until release is called. Only one exchange per session
// may be outstanding.
func (s *Service) BeginExchange(_ context.Context, sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrSessionNotFound
	}
	if s.inFlight[sessionID] {
		return nil, ErrExchangeInFlight
	}
	s.inFlight[sessionID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inFlight, sessionID)
			s.mu.Unlock()
		})
	}, nil
}
