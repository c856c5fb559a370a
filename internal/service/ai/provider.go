package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

var (
	// ErrMissingCredential means neither an injected nor a user supplied key is available.
	ErrMissingCredential = errors.New("no api key configured")
	// ErrEmptyResponse means the provider answered without the expected text field.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// APIError carries an error object reported by the provider itself.
type APIError struct {
	Provider   bot.Provider
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Request is the provider-neutral input of a single completion.
type Request struct {
	Model        string
	Credential   string
	Instructions string
	History      []chat.Turn
	Message      string
}

// Provider produces one reply for a request using its own wire format.
type Provider interface {
	Name() bot.Provider
	Complete(ctx context.Context, req Request) (string, error)
}
