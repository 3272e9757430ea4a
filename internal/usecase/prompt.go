package usecase

import (
	"strings"

	"trainer-agent/internal/domain"
)

// buildPromptMessages assembles the system prompt, the chronological history
// re-expressed as alternating user/assistant turns, and the new user message.
func buildPromptMessages(systemPrompt string, history []domain.Turn, newMessage string) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: "system", Content: systemPrompt},
	}
	for _, turn := range history {
		messages = append(messages, turnToPromptMessages(turn)...)
	}
	messages = append(messages, domain.ChatMessage{
		Role:    "user",
		Content: newMessage,
	})
	return messages
}

// turnToPromptMessages expands one persisted turn. A turn whose assistant
// message is absent (the completion failed before a reply was produced) still
// contributes its user message.
func turnToPromptMessages(turn domain.Turn) []domain.ChatMessage {
	userMessage := strings.TrimSpace(turn.UserMessage)
	if userMessage == "" {
		return nil
	}
	out := []domain.ChatMessage{
		{Role: "user", Content: userMessage},
	}
	if assistantMessage := strings.TrimSpace(turn.AssistantMessage); assistantMessage != "" {
		out = append(out, domain.ChatMessage{Role: "assistant", Content: assistantMessage})
	}
	return out
}
