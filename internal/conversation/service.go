// ABOUTME: Service is the orchestrator driving one chat turn end to end
// ABOUTME: Publishes live updates, streams generation, and hands finalized messages to the reconciler

package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/murmur-chat/murmur-gateway/internal/generate"
	"github.com/murmur-chat/murmur-gateway/internal/live"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

// ErrEmptyMessage is returned when a turn request carries no message text.
var ErrEmptyMessage = errors.New("message is required")

// userFacingErrorBody is published as the terminal entry when generation
// fails. It is fixed and non-sensitive; internal details go to the log only.
const userFacingErrorBody = "Sorry, I encountered an error. Please try again."

// DefaultFragmentTimeout bounds the wait for each generator fragment.
const DefaultFragmentTimeout = 30 * time.Second

// Options tune the orchestrator.
type Options struct {
	// SystemPrompt overrides DefaultSystemPrompt when non-empty.
	SystemPrompt string

	// FragmentTimeout overrides DefaultFragmentTimeout when positive.
	// Expiry is treated as a terminal generation failure.
	FragmentTimeout time.Duration
}

// Service orchestrates chat turns. Each turn publishes the user's own message
// as a completed live entry, enqueues it for history reconciliation, then
// runs the assistant reply in its own goroutine: streaming deltas through the
// live channel and finalizing into history when the generator is exhausted.
type Service struct {
	store           store.Store
	live            *live.Channel
	generator       generate.Generator
	reconciler      *Reconciler
	systemPrompt    string
	fragmentTimeout time.Duration
	logger          *slog.Logger

	// wg tracks in-flight assistant turns so Close can drain them
	wg sync.WaitGroup
}

// New creates the orchestrator service. Pass nil logger for default.
func New(st store.Store, ch *live.Channel, gen generate.Generator, rec *Reconciler, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	fragmentTimeout := opts.FragmentTimeout
	if fragmentTimeout <= 0 {
		fragmentTimeout = DefaultFragmentTimeout
	}

	return &Service{
		store:           st,
		live:            ch,
		generator:       gen,
		reconciler:      rec,
		systemPrompt:    systemPrompt,
		fragmentTimeout: fragmentTimeout,
		logger:          logger.With("component", "conversation"),
	}
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	// ConversationID is assigned when empty (new conversation).
	ConversationID string
	Message        string
}

// TurnResponse acknowledges an accepted turn. Entry is the assistant
// placeholder snapshot clients can render while subscribing for updates.
type TurnResponse struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Entry              *live.Entry
}

// StartTurn accepts a user message and starts the assistant reply.
//
// Synchronously: publishes the user's message as a completed live entry,
// enqueues its history write, and publishes the assistant placeholder with
// status created. The assistant turn itself runs in a goroutine; the caller
// subscribes to the live channel for progress.
func (s *Service) StartTurn(ctx context.Context, req *TurnRequest) (*TurnResponse, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	userMessageID := uuid.New().String()
	assistantMessageID := uuid.New().String()

	s.logger.Info("new chat message received",
		"conversation_id", conversationID,
		"message_length", len(req.Message))

	userTimestamp := time.Now()
	s.live.Publish(conversationID, userMessageID, &live.Entry{
		ConversationID: conversationID,
		MessageID:      userMessageID,
		Content:        req.Message,
		Author:         store.AuthorUser,
		Status:         live.StatusCompleted,
		Timestamp:      userTimestamp,
	})
	s.reconciler.Enqueue(&SaveRequest{
		ConversationID: conversationID,
		MessageID:      userMessageID,
		Body:           req.Message,
		Author:         store.AuthorUser,
		Timestamp:      userTimestamp,
	})

	placeholder := &live.Entry{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Author:         store.AuthorAssistant,
		Status:         live.StatusCreated,
		Timestamp:      time.Now(),
	}
	s.live.Publish(conversationID, assistantMessageID, placeholder)

	s.wg.Add(1)
	go s.runAssistantTurn(conversationID, userMessageID, assistantMessageID, req.Message)

	return &TurnResponse{
		ConversationID:     conversationID,
		UserMessageID:      userMessageID,
		AssistantMessageID: assistantMessageID,
		Entry:              placeholder,
	}, nil
}

// fragResult carries one generator pull.
type fragResult struct {
	frag string
	err  error
}

// runAssistantTurn drives one assistant reply to its terminal state. Every
// path ends with a completed live entry so subscribers never hang; only the
// success path reaches the reconciler.
func (s *Service) runAssistantTurn(conversationID, userMessageID, assistantMessageID, userMessage string) {
	defer s.wg.Done()

	// Detached from the request context: the turn outlives the HTTP
	// acknowledgment and is not cancellable mid-stream.
	ctx := context.Background()

	s.live.Publish(conversationID, assistantMessageID, &live.Entry{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Author:         store.AuthorAssistant,
		Status:         live.StatusStreaming,
		Timestamp:      time.Now(),
	})

	history := s.loadHistory(ctx, conversationID)
	prompt := buildPrompt(s.systemPrompt, history, userMessageID, userMessage)

	stream, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.failTurn(conversationID, assistantMessageID, err)
		return
	}
	defer stream.Close()

	frags := make(chan fragResult, 1)
	pumpDone := make(chan struct{})
	defer close(pumpDone)
	go func() {
		for {
			frag, err := stream.Recv()
			select {
			case frags <- fragResult{frag: frag, err: err}:
			case <-pumpDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var full strings.Builder
	for {
		select {
		case res := <-frags:
			if errors.Is(res.err, io.EOF) {
				s.finalizeTurn(conversationID, assistantMessageID, full.String())
				return
			}
			if res.err != nil {
				s.failTurn(conversationID, assistantMessageID, res.err)
				return
			}

			full.WriteString(res.frag)
			// Content stays empty while streaming; clients accumulate
			// deltas and never pay for the whole growing string per token.
			s.live.Publish(conversationID, assistantMessageID, &live.Entry{
				ConversationID: conversationID,
				MessageID:      assistantMessageID,
				Delta:          res.frag,
				Author:         store.AuthorAssistant,
				Status:         live.StatusStreaming,
				Timestamp:      time.Now(),
			})

		case <-time.After(s.fragmentTimeout):
			s.failTurn(conversationID, assistantMessageID,
				errors.New("timed out waiting for generator fragment"))
			return
		}
	}
}

// loadHistory reads the conversation history for prompt building. A read
// failure degrades to "no history" so the turn still proceeds.
func (s *Service) loadHistory(ctx context.Context, conversationID string) *store.Conversation {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		s.logger.Error("history read failed, proceeding without history",
			"error", err,
			"conversation_id", conversationID)
		return nil
	}
	return conv
}

// finalizeTurn publishes the terminal completed entry and hands the full
// reply to the reconciler.
func (s *Service) finalizeTurn(conversationID, assistantMessageID, full string) {
	completedAt := time.Now()

	s.live.Publish(conversationID, assistantMessageID, &live.Entry{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Content:        full,
		Author:         store.AuthorAssistant,
		Status:         live.StatusCompleted,
		Timestamp:      completedAt,
	})
	s.reconciler.Enqueue(&SaveRequest{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Body:           full,
		Author:         store.AuthorAssistant,
		Timestamp:      completedAt,
	})

	s.logger.Info("assistant reply completed",
		"conversation_id", conversationID,
		"message_id", assistantMessageID,
		"response_length", len(full))
}

// failTurn publishes the terminal error entry. The error turn is not
// persisted to history; fragments already streamed stand as delivered.
func (s *Service) failTurn(conversationID, assistantMessageID string, err error) {
	s.logger.Error("assistant turn failed",
		"error", err,
		"conversation_id", conversationID,
		"message_id", assistantMessageID)

	s.live.Publish(conversationID, assistantMessageID, &live.Entry{
		ConversationID: conversationID,
		MessageID:      assistantMessageID,
		Content:        userFacingErrorBody,
		Author:         store.AuthorAssistant,
		Status:         live.StatusCompleted,
		Timestamp:      time.Now(),
	})
}

// Close waits for in-flight assistant turns to reach their terminal state.
func (s *Service) Close() {
	s.wg.Wait()
	s.logger.Debug("conversation service closed")
}
