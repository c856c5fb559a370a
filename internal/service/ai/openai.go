package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
)

// DefaultOpenAIBaseURL is the public chat completions API root.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider sends the full conversation as a chat completions message list.
type OpenAIProvider struct {
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates a provider that posts to baseURL + "/chat/completions".
func NewOpenAIProvider(baseURL string, client *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  withProviderErrors(client, bot.ProviderOpenAI),
	}
}

func (p *OpenAIProvider) Name() bot.Provider { return bot.ProviderOpenAI }

// Complete builds a chat model for the requested model and credential and runs one completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:    p.baseURL,
		APIKey:     req.Credential,
		Model:      req.Model,
		HTTPClient: p.client,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat model: %w", err)
	}

	response, err := runConversation(ctx, chatModel, req)
	if err != nil {
		return "", err
	}
	if response == nil || response.Content == "" {
		return "", ErrEmptyResponse
	}
	return response.Content, nil
}
