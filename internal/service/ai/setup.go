package ai

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatdesk/backend/internal/config"
	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
)

// NewFromConfig registers all three provider variants using cfg. A zero cfg.Timeout leaves
// provider calls unbounded.
func NewFromConfig(cfg config.AIConfig, logger zerolog.Logger) (*Service, *GeminiProvider) {
	client := &http.Client{Timeout: cfg.Timeout}
	gemini := NewGeminiProvider(cfg.GeminiBaseURL, client)

	svc := NewService(Options{
		InjectedKey:  cfg.InjectedKey,
		ProviderKeys: map[bot.Provider]string{bot.ProviderArk: cfg.ArkAPIKey},
		Logger:       logger,
	},
		NewOpenAIProvider(cfg.OpenAIBaseURL, client),
		gemini,
		NewArkProvider(cfg.ArkBaseURL, cfg.ArkRegion),
	)
	return svc, gemini
}
