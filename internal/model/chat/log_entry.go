package chat

import "time"

// LogEntry records an exchange that was handed to the external logging target.
type LogEntry struct {
	ID             string    `json:"id"`
	UserMessage    string    `json:"userMessage"`
	BotResponse    string    `json:"botResponse"`
	Timestamp      time.Time `json:"timestamp"`
	BotDisplayName string    `json:"botDisplayName"`
}
