package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
)

// runConversation renders req through conversationTemplate and invokes chatModel once.
func runConversation(ctx context.Context, chatModel model.BaseChatModel, req Request) (*schema.Message, error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(conversationTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return runnable.Invoke(ctx, map[string]any{
		"system":  req.Instructions,
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	})
}

// providerErrorTransport turns provider-reported failures into *APIError before an SDK
// reformats them. Successful responses without any choice are reported as ErrEmptyResponse.
type providerErrorTransport struct {
	provider bot.Provider
	next     http.RoundTripper
}

func withProviderErrors(client *http.Client, provider bot.Provider) *http.Client {
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped := *client
	wrapped.Transport = &providerErrorTransport{provider: provider, next: next}
	return &wrapped
}

func (t *providerErrorTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded struct {
		Choices []json.RawMessage `json:"choices"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	jsonErr := json.Unmarshal(raw, &decoded)

	switch {
	case decoded.Error != nil && decoded.Error.Message != "":
		return nil, &APIError{Provider: t.provider, StatusCode: resp.StatusCode, Message: decoded.Error.Message}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &APIError{Provider: t.provider, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	case jsonErr == nil && len(decoded.Choices) == 0:
		return nil, ErrEmptyResponse
	}

	resp.Body = io.NopCloser(bytes.NewReader(raw))
	resp.ContentLength = int64(len(raw))
	return resp, nil
}
