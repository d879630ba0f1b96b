package assistant

import (
	"fmt"
	"strings"

	"aria/backend/internal/openrouter"
)

// HistoryMessage is one persisted turn loaded for context assembly.
type HistoryMessage struct {
	Role    string
	Content string
}

// UploadedFile is an inline attachment sent with a message turn.
type UploadedFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// BuildMessages assembles the outbound prompt: optional system preamble,
// chronological history, then the current user turn with search context and
// file content folded in. History rows with the error role are remapped to
// assistant so the providers see a coherent conversation.
func BuildMessages(systemPrompt string, history []HistoryMessage, message, searchContext string, file *UploadedFile) []openrouter.Message {
	messages := make([]openrouter.Message, 0, len(history)+2)

	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, openrouter.Message{Role: "system", Content: systemPrompt})
	}

	for _, turn := range history {
		role := turn.Role
		if role == "error" {
			role = "assistant"
		}
		messages = append(messages, openrouter.Message{Role: role, Content: turn.Content})
	}

	content := message
	if searchContext != "" {
		content += searchContext
	}
	if file != nil && strings.TrimSpace(file.Name) != "" {
		content += fmt.Sprintf("\n\n[Uploaded file: %s]:\n%s", file.Name, file.Content)
	}

	messages = append(messages, openrouter.Message{Role: "user", Content: content})
	return messages
}

// FlattenMessages renders a role-tagged message array as one prompt string
// for providers that accept only a single text input.
func FlattenMessages(messages []openrouter.Message) string {
	var builder strings.Builder
	for i, msg := range messages {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(msg.Role)
		builder.WriteString(": ")
		builder.WriteString(msg.Content)
	}
	return builder.String()
}
