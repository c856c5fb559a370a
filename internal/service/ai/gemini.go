package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
)

// DefaultGeminiBaseURL is the public generative language API root.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiPart is one text fragment of a content block.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiContent is one role-tagged content block.
type GeminiContent struct {
	Role  string       `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []GeminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiProvider sends a single user content block made of the instructions and the new text.
// Prior turns are not sent on this path.
type GeminiProvider struct {
	baseURL string
	client  *http.Client
}

// NewGeminiProvider creates a provider that posts to baseURL + "/models/{model}:generateContent".
func NewGeminiProvider(baseURL string, client *http.Client) *GeminiProvider {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *GeminiProvider) Name() bot.Provider { return bot.ProviderGemini }

// Complete issues a single generateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	contents := []GeminiContent{{
		Role:  "user",
		Parts: []GeminiPart{{Text: req.Instructions + "\n\nUser: " + req.Message}},
	}}

	status, raw, err := p.Generate(ctx, req.Model, req.Credential, contents)
	if err != nil {
		return "", err
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if status >= http.StatusBadRequest {
			return "", &APIError{Provider: bot.ProviderGemini, StatusCode: status, Message: http.StatusText(status)}
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if decoded.Error != nil {
		return "", &APIError{Provider: bot.ProviderGemini, StatusCode: status, Message: decoded.Error.Message}
	}
	if status >= http.StatusBadRequest {
		return "", &APIError{Provider: bot.ProviderGemini, StatusCode: status, Message: http.StatusText(status)}
	}
	if len(decoded.Candidates) == 0 || decoded.Candidates[0].Content == nil ||
		len(decoded.Candidates[0].Content.Parts) == 0 || decoded.Candidates[0].Content.Parts[0].Text == nil {
		return "", ErrEmptyResponse
	}

	return *decoded.Candidates[0].Content.Parts[0].Text, nil
}

// Generate posts contents as-is and returns the raw status and body. The key travels as a
// query parameter.
func (p *GeminiProvider) Generate(ctx context.Context, model, key string, contents []GeminiContent) (int, []byte, error) {
	jsonBody, err := json.Marshal(geminiRequest{Contents: contents})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(model), url.QueryEscape(key))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}
