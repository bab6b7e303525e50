// ABOUTME: Generator interface and prompt types for streaming completion providers
// ABOUTME: Defines the lazy fragment stream contract consumed by the orchestrator

package generate

import "context"

// Prompt roles understood by completion providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptMessage is one entry of the prompt context sent to the provider.
type PromptMessage struct {
	Role    string
	Content string
}

// Stream is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF when the stream is exhausted; any other error is
// terminal, but fragments already received remain valid. Close releases the
// underlying transport and must always be called.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Generator produces a completion as a lazy fragment stream. The caller
// supplies the full prompt context on every call; implementations hold no
// state between calls.
type Generator interface {
	Generate(ctx context.Context, prompt []PromptMessage) (Stream, error)
}
