// ABOUTME: Prompt context construction from stored conversation history
// ABOUTME: Maps history to provider roles, falling back to the bare user message

package conversation

import (
	"github.com/murmur-chat/murmur-gateway/internal/generate"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

// DefaultSystemPrompt is the fixed instruction prepended to every prompt.
const DefaultSystemPrompt = "You are a helpful AI assistant. Keep responses concise and friendly."

// buildPrompt assembles the prompt context for one assistant turn: the system
// instruction, every stored message in order mapped to its role, then the
// current user message. With no history (first turn, or a failed history
// read) the result is just system instruction plus user message.
//
// The user message of the current turn is enqueued for reconciliation before
// generation starts, so it may or may not have landed in history by the time
// we read it. Skipping userMessageID here keeps the context identical under
// both outcomes.
func buildPrompt(systemPrompt string, history *store.Conversation, userMessageID, userMessage string) []generate.PromptMessage {
	prompt := []generate.PromptMessage{
		{Role: generate.RoleSystem, Content: systemPrompt},
	}

	if history != nil {
		for _, msg := range history.Messages {
			if msg.ID == userMessageID {
				continue
			}
			role := generate.RoleUser
			if msg.Author == store.AuthorAssistant {
				role = generate.RoleAssistant
			}
			prompt = append(prompt, generate.PromptMessage{Role: role, Content: msg.Body})
		}
	}

	prompt = append(prompt, generate.PromptMessage{Role: generate.RoleUser, Content: userMessage})
	return prompt
}
