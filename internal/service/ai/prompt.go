package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/model/chat"
)

const knowledgeBaseHeading = "\n\nKNOWLEDGE BASE:\n"

// BuildInstructions joins the system prompt and the knowledge base. The knowledge base is
// appended verbatim, however large it is.
func BuildInstructions(cfg bot.Configuration) string {
	if cfg.KnowledgeBase == "" {
		return cfg.SystemPrompt
	}
	return cfg.SystemPrompt + knowledgeBaseHeading + cfg.KnowledgeBase
}

// conversationTemplate renders instructions, prior turns and the new user text as a structured
// message list.
var conversationTemplate = prompt.FromMessages(
	schema.FString,
	schema.SystemMessage("{system}"),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{query}"),
)

func buildConversation(ctx context.Context, req Request) ([]*schema.Message, error) {
	messages, err := conversationTemplate.Format(ctx, map[string]any{
		"system":  req.Instructions,
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render conversation: %w", err)
	}
	return messages, nil
}

func buildHistoryMessages(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.SystemMessage(turn.Content))
		}
	}
	return history
}
