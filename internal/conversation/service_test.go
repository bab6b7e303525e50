// ABOUTME: Tests for the turn orchestrator
// ABOUTME: Covers the streaming lifecycle, error turns, history persistence, and prompt context

package conversation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmur-chat/murmur-gateway/internal/generate"
	"github.com/murmur-chat/murmur-gateway/internal/live"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

// testHarness bundles the orchestrator with its collaborators so tests can
// observe live entries and reconciled history.
type testHarness struct {
	service    *Service
	store      *store.MockStore
	live       *live.Channel
	reconciler *Reconciler
}

func newTestHarness(t *testing.T, gen generate.Generator, opts Options) *testHarness {
	t.Helper()

	st := store.NewMockStore()
	ch := live.NewChannel(nil)
	rec := NewReconciler(st, nil)
	svc := New(st, ch, gen, rec, opts, nil)

	t.Cleanup(func() {
		svc.Close()
		rec.Close()
		ch.Close()
	})

	return &testHarness{service: svc, store: st, live: ch, reconciler: rec}
}

// gatedGenerator holds Generate until release is closed, giving tests time to
// subscribe before any fragment flows.
type gatedGenerator struct {
	inner   generate.Generator
	release chan struct{}
}

func newGatedGenerator(inner generate.Generator) *gatedGenerator {
	return &gatedGenerator{inner: inner, release: make(chan struct{})}
}

func (g *gatedGenerator) Generate(ctx context.Context, prompt []generate.PromptMessage) (generate.Stream, error) {
	<-g.release
	return g.inner.Generate(ctx, prompt)
}

// stuckStream never yields a fragment until closed.
type stuckStream struct {
	done chan struct{}
	once sync.Once
}

func (s *stuckStream) Recv() (string, error) {
	<-s.done
	return "", io.EOF
}

func (s *stuckStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type stuckGenerator struct{}

func (stuckGenerator) Generate(ctx context.Context, prompt []generate.PromptMessage) (generate.Stream, error) {
	return &stuckStream{done: make(chan struct{})}, nil
}

// collectUntilTerminal drains a subscription until the completed entry lands.
func collectUntilTerminal(t *testing.T, entries <-chan *live.Entry) []*live.Entry {
	t.Helper()

	var got []*live.Entry
	deadline := time.After(5 * time.Second)
	for {
		select {
		case entry, ok := <-entries:
			require.True(t, ok, "subscription closed before a terminal entry arrived")
			got = append(got, entry)
			if entry.Terminal() {
				return got
			}
		case <-deadline:
			t.Fatalf("no terminal entry after %d entries", len(got))
		}
	}
}

func TestService_StartTurn_RejectsEmptyMessage(t *testing.T) {
	h := newTestHarness(t, generate.NewMockGenerator(), Options{})

	_, err := h.service.StartTurn(context.Background(), &TurnRequest{})
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestService_StartTurn_AssignsAddressing(t *testing.T) {
	h := newTestHarness(t, generate.NewMockGenerator("ok"), Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	assert.NotEmpty(t, resp.UserMessageID)
	assert.NotEmpty(t, resp.AssistantMessageID)
	assert.NotEqual(t, resp.UserMessageID, resp.AssistantMessageID)
	require.NotNil(t, resp.Entry)
	assert.Equal(t, live.StatusCreated, resp.Entry.Status)
	assert.Equal(t, store.AuthorAssistant, resp.Entry.Author)
}

func TestService_StartTurn_KeepsProvidedConversationID(t *testing.T) {
	h := newTestHarness(t, generate.NewMockGenerator("ok"), Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{
		ConversationID: "conv-existing",
		Message:        "Hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-existing", resp.ConversationID)
}

func TestService_StartTurn_PublishesUserMessageCompleted(t *testing.T) {
	h := newTestHarness(t, generate.NewMockGenerator("ok"), Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	entry := h.live.Snapshot(resp.ConversationID, resp.UserMessageID)
	require.NotNil(t, entry, "user entry must be published before StartTurn returns")
	assert.Equal(t, live.StatusCompleted, entry.Status)
	assert.Equal(t, "Hi", entry.Content)
	assert.Equal(t, store.AuthorUser, entry.Author)
}

func TestService_AssistantTurnStreamsDeltasThenFinalizes(t *testing.T) {
	gen := newGatedGenerator(generate.NewMockGenerator("Hi ", "there", "!"))
	h := newTestHarness(t, gen, Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries, _ := h.live.Subscribe(ctx, resp.ConversationID, resp.AssistantMessageID)
	close(gen.release)

	got := collectUntilTerminal(t, entries)

	var deltas []string
	for _, entry := range got {
		assert.Equal(t, store.AuthorAssistant, entry.Author)
		if entry.Delta != "" {
			deltas = append(deltas, entry.Delta)
			assert.Equal(t, live.StatusStreaming, entry.Status)
			assert.Empty(t, entry.Content, "streaming entries carry deltas only")
		}
	}
	assert.Equal(t, []string{"Hi ", "there", "!"}, deltas)

	final := got[len(got)-1]
	assert.Equal(t, live.StatusCompleted, final.Status)
	assert.Equal(t, "Hi there!", final.Content)
	assert.Empty(t, final.Delta)
}

func TestService_TurnPersistsUserThenAssistant(t *testing.T) {
	h := newTestHarness(t, generate.NewMockGenerator("Hi ", "there"), Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conv, err := h.store.GetConversation(context.Background(), resp.ConversationID)
		return err == nil && len(conv.Messages) == 2
	}, 5*time.Second, 10*time.Millisecond)

	conv, err := h.store.GetConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, resp.UserMessageID, conv.Messages[0].ID)
	assert.Equal(t, store.AuthorUser, conv.Messages[0].Author)
	assert.Equal(t, "Hi", conv.Messages[0].Body)
	assert.Equal(t, resp.AssistantMessageID, conv.Messages[1].ID)
	assert.Equal(t, store.AuthorAssistant, conv.Messages[1].Author)
	assert.Equal(t, "Hi there", conv.Messages[1].Body)
}

func TestService_StreamErrorPublishesErrorBodyAndSkipsHistory(t *testing.T) {
	gen := generate.NewMockGenerator("Hel", "lo")
	gen.Err = errors.New("provider hung up")
	h := newTestHarness(t, gen, Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries, _ := h.live.Subscribe(ctx, resp.ConversationID, resp.AssistantMessageID)
	got := collectUntilTerminal(t, entries)

	final := got[len(got)-1]
	assert.Equal(t, live.StatusCompleted, final.Status)
	assert.Equal(t, userFacingErrorBody, final.Content)

	// Only the user message reaches history; the failed reply is never saved.
	require.Eventually(t, func() bool {
		conv, err := h.store.GetConversation(context.Background(), resp.ConversationID)
		return err == nil && len(conv.Messages) == 1
	}, 5*time.Second, 10*time.Millisecond)

	conv, err := h.store.GetConversation(context.Background(), resp.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, resp.UserMessageID, conv.Messages[0].ID)
}

func TestService_GenerateFailurePublishesErrorBody(t *testing.T) {
	gen := generate.NewMockGenerator()
	gen.GenerateErr = errors.New("bad credentials")
	h := newTestHarness(t, gen, Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries, _ := h.live.Subscribe(ctx, resp.ConversationID, resp.AssistantMessageID)
	got := collectUntilTerminal(t, entries)

	final := got[len(got)-1]
	assert.Equal(t, live.StatusCompleted, final.Status)
	assert.Equal(t, userFacingErrorBody, final.Content)
}

func TestService_FragmentTimeoutFailsTurn(t *testing.T) {
	h := newTestHarness(t, stuckGenerator{}, Options{FragmentTimeout: 50 * time.Millisecond})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries, _ := h.live.Subscribe(ctx, resp.ConversationID, resp.AssistantMessageID)
	got := collectUntilTerminal(t, entries)

	final := got[len(got)-1]
	assert.Equal(t, live.StatusCompleted, final.Status)
	assert.Equal(t, userFacingErrorBody, final.Content)
}

func TestService_PromptCarriesStoredHistory(t *testing.T) {
	now := time.Now()
	gen := generate.NewMockGenerator("ok")
	h := newTestHarness(t, gen, Options{SystemPrompt: "sys"})

	require.NoError(t, h.store.PutConversation(context.Background(), &store.Conversation{
		ID: "conv-1",
		Messages: []store.Message{
			{ID: "u1", Body: "What is Go?", Author: store.AuthorUser, CreatedAt: now},
			{ID: "a1", Body: "A language.", Author: store.AuthorAssistant, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}))

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{
		ConversationID: "conv-1",
		Message:        "Who made it?",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries, _ := h.live.Subscribe(ctx, resp.ConversationID, resp.AssistantMessageID)
	collectUntilTerminal(t, entries)

	require.Len(t, gen.LastPrompt, 4)
	assert.Equal(t, generate.PromptMessage{Role: generate.RoleSystem, Content: "sys"}, gen.LastPrompt[0])
	assert.Equal(t, generate.PromptMessage{Role: generate.RoleUser, Content: "What is Go?"}, gen.LastPrompt[1])
	assert.Equal(t, generate.PromptMessage{Role: generate.RoleAssistant, Content: "A language."}, gen.LastPrompt[2])
	assert.Equal(t, generate.PromptMessage{Role: generate.RoleUser, Content: "Who made it?"}, gen.LastPrompt[3])
}

func TestService_CloseWaitsForInFlightTurn(t *testing.T) {
	gen := newGatedGenerator(generate.NewMockGenerator("done"))
	h := newTestHarness(t, gen, Options{})

	resp, err := h.service.StartTurn(context.Background(), &TurnRequest{Message: "Hi"})
	require.NoError(t, err)

	close(gen.release)
	h.service.Close()

	entry := h.live.Snapshot(resp.ConversationID, resp.AssistantMessageID)
	require.NotNil(t, entry)
	assert.Equal(t, live.StatusCompleted, entry.Status)
	assert.Equal(t, "done", entry.Content)
}
