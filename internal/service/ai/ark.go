package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
)

// ArkProvider runs the conversation through an Ark chat model chain.
type ArkProvider struct {
	baseURL string
	region  string
}

// NewArkProvider creates a provider for the Volcengine Ark endpoint in region.
func NewArkProvider(baseURL, region string) *ArkProvider {
	return &ArkProvider{baseURL: baseURL, region: region}
}

func (p *ArkProvider) Name() bot.Provider { return bot.ProviderArk }

// Complete builds a chain for the requested model and credential and invokes it once.
func (p *ArkProvider) Complete(ctx context.Context, req Request) (string, error) {
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: p.baseURL,
		Region:  p.region,
		APIKey:  req.Credential,
		Model:   req.Model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat model: %w", err)
	}

	response, err := runConversation(ctx, chatModel, req)
	if err != nil {
		return "", arkFailure(err)
	}
	if response == nil || response.Content == "" {
		return "", ErrEmptyResponse
	}
	return response.Content, nil
}

// arkFailure keeps errors reported by Ark itself distinguishable from transport failures.
func arkFailure(err error) error {
	var apiErr *arkmodel.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: bot.ProviderArk, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	return fmt.Errorf("failed to run chat chain: %w", err)
}
