// ABOUTME: Mock Generator implementation for testing
// ABOUTME: Yields scripted fragments and optional terminal errors without a provider

package generate

import (
	"context"
	"io"
	"sync"
)

// MockGenerator is a scripted Generator for tests. Each Generate call yields
// Fragments in order, then Err (or io.EOF when Err is nil). When FailAfter is
// set to n >= 0 and Err is non-nil, the error surfaces after n fragments
// instead of after all of them.
type MockGenerator struct {
	mu        sync.Mutex
	Fragments []string
	Err       error
	FailAfter int // -1 means after all fragments; set via NewMockGenerator

	// GenerateErr, when set, is returned by Generate itself before any
	// fragment is produced.
	GenerateErr error

	// LastPrompt records the prompt of the most recent Generate call.
	LastPrompt []PromptMessage

	// Calls counts Generate invocations.
	Calls int
}

// NewMockGenerator creates a mock yielding the given fragments then EOF.
func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{Fragments: fragments, FailAfter: -1}
}

// Generate returns a scripted stream.
func (m *MockGenerator) Generate(ctx context.Context, prompt []PromptMessage) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.LastPrompt = append([]PromptMessage(nil), prompt...)

	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}

	failAt := len(m.Fragments)
	if m.Err != nil && m.FailAfter >= 0 && m.FailAfter < failAt {
		failAt = m.FailAfter
	}

	return &mockStream{
		fragments: append([]string(nil), m.Fragments[:failAt]...),
		err:       m.Err,
	}, nil
}

// mockStream replays scripted fragments.
type mockStream struct {
	mu        sync.Mutex
	fragments []string
	pos       int
	err       error
	closed    bool
}

func (s *mockStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", io.EOF
	}
	if s.pos < len(s.fragments) {
		frag := s.fragments[s.pos]
		s.pos++
		return frag, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *mockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure MockGenerator implements Generator
var _ Generator = (*MockGenerator)(nil)
