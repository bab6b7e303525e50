// ABOUTME: Tests for gateway lifecycle management
// ABOUTME: Verifies startup, serving, and graceful shutdown on context cancellation

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/murmur-chat/murmur-gateway/internal/generate"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

func TestGateway_RunStopsOnContextCancel(t *testing.T) {
	gw, err := NewWithOptions(testConfig(), Options{
		Store:     store.NewMockStore(),
		Generator: generate.NewMockGenerator(),
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	// Give the server a moment to come up, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestGateway_ShutdownIsCleanWithoutRun(t *testing.T) {
	gw, err := NewWithOptions(testConfig(), Options{
		Store:     store.NewMockStore(),
		Generator: generate.NewMockGenerator(),
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, gw.Shutdown(ctx))
}
