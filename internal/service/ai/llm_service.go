package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

// FailureMarker prefixes every reply that stands in for a failed provider call.
const FailureMarker = "⚠️"

// IsFailure reports whether text was produced by a failed provider call.
func IsFailure(text string) bool {
	return strings.HasPrefix(text, FailureMarker)
}

// Options configures a Service.
type Options struct {
	// InjectedKey is preferred over the credential stored in the bot configuration.
	InjectedKey string
	// ProviderKeys are server-held keys for individual providers; they win over InjectedKey.
	ProviderKeys map[bot.Provider]string
	Logger       zerolog.Logger
}

// Service turns a conversation into one reply text. It never returns an error: failures come
// back as marker-prefixed text that renders like any other assistant turn.
type Service struct {
	providers    map[bot.Provider]Provider
	injectedKey  string
	providerKeys map[bot.Provider]string
	logger       zerolog.Logger
}

// NewService registers the given provider variants.
func NewService(opts Options, providers ...Provider) *Service {
	s := &Service{
		providers:    make(map[bot.Provider]Provider, len(providers)),
		injectedKey:  strings.TrimSpace(opts.InjectedKey),
		providerKeys: make(map[bot.Provider]string, len(opts.ProviderKeys)),
		logger:       opts.Logger.With().Str("component", "ai").Logger(),
	}
	for _, p := range providers {
		s.providers[p.Name()] = p
	}
	for name, key := range opts.ProviderKeys {
		if key = strings.TrimSpace(key); key != "" {
			s.providerKeys[name] = key
		}
	}
	return s
}

// ResolveCredential picks the key used for cfg.
func (s *Service) ResolveCredential(cfg bot.Configuration) (string, error) {
	if key := s.providerKeys[cfg.Provider]; key != "" {
		return key, nil
	}
	if s.injectedKey != "" {
		return s.injectedKey, nil
	}
	if key := strings.TrimSpace(cfg.Credential); key != "" {
		return key, nil
	}
	return "", ErrMissingCredential
}

// Generate asks the configured provider for a reply to latestUserText given the prior turns.
// cfg is a snapshot; later edits to the stored configuration do not affect this call.
func (s *Service) Generate(ctx context.Context, history []chat.Turn, latestUserText string, cfg bot.Configuration) string {
	key, err := s.ResolveCredential(cfg)
	if err != nil {
		return FailureMarker + " Configuration Error: No API key found. Add a key in the bot settings."
	}

	provider, ok := s.providers[cfg.Provider]
	if !ok {
		return fmt.Sprintf("%s Configuration Error: provider %q is not available.", FailureMarker, cfg.Provider)
	}

	req := Request{
		Model:        cfg.ModelID,
		Credential:   key,
		Instructions: BuildInstructions(cfg),
		History:      append([]chat.Turn(nil), history...),
		Message:      latestUserText,
	}

	reply, err := provider.Complete(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", string(cfg.Provider)).Str("model", cfg.ModelID).Msg("provider call failed")
		return describeFailure(err)
	}

	s.logger.Debug().Str("provider", string(cfg.Provider)).Str("model", cfg.ModelID).Int("length", len(reply)).Msg("generated reply")
	return reply
}

func describeFailure(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Sprintf("%s %s Error: %s", FailureMarker, providerLabel(apiErr.Provider), apiErr.Message)
	case errors.Is(err, ErrEmptyResponse):
		return FailureMarker + " Error: Empty response from AI."
	default:
		return fmt.Sprintf("%s Network Error: %v", FailureMarker, err)
	}
}

func providerLabel(p bot.Provider) string {
	for _, c := range bot.Providers() {
		if c.Provider == p {
			return c.Label
		}
	}
	return string(p)
}
