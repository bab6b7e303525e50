// ABOUTME: OpenAI-backed Generator implementation using chat completion streaming
// ABOUTME: Maps prompt messages to the wire format and skips empty provider chunks

package generate

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4.1-nano"

// Config holds the settings for the OpenAI generator.
type Config struct {
	APIKey  string
	BaseURL string // empty means the public OpenAI endpoint
	Model   string // empty means DefaultModel
}

// OpenAIGenerator implements Generator against an OpenAI-compatible chat
// completion API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAIGenerator creates a generator from config. Pass nil logger for default.
func NewOpenAIGenerator(cfg Config, logger *slog.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger.With("component", "generate"),
	}
}

// Generate opens a streaming chat completion for the given prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt []PromptMessage) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, m := range prompt {
		role, err := wireRole(m.Role)
		if err != nil {
			return nil, err
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening completion stream: %w", err)
	}

	g.logger.Debug("completion stream opened", "model", g.model, "prompt_messages", len(prompt))
	return &openaiStream{stream: stream}, nil
}

// wireRole maps a prompt role to the provider's role constant.
func wireRole(role string) (string, error) {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem, nil
	case RoleUser:
		return openai.ChatMessageRoleUser, nil
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown prompt role %q", role)
	}
}

// openaiStream adapts the provider stream to the Stream interface.
type openaiStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next non-empty content fragment. Chunks without content
// (role preambles, finish markers) are skipped.
func (s *openaiStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		content := resp.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		return content, nil
	}
}

// Close releases the underlying HTTP stream.
func (s *openaiStream) Close() error {
	s.stream.Close()
	return nil
}

// Ensure OpenAIGenerator implements Generator
var _ Generator = (*OpenAIGenerator)(nil)
