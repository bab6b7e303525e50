// ABOUTME: Tests for the live update Channel pub/sub system
// ABOUTME: Covers snapshot delivery, ordering, isolation, and unsubscribe paths

package live

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntry(convID, msgID, delta, status string) *Entry {
	return &Entry{
		ConversationID: convID,
		MessageID:      msgID,
		Delta:          delta,
		Author:         "assistant",
		Status:         status,
		Timestamp:      time.Now(),
	}
}

func recvOne(t *testing.T, ch <-chan *Entry) *Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry")
		return nil
	}
}

func TestChannel_SubscriberReceivesPublishedEntry(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")

	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "Hel", StatusStreaming))

	got := recvOne(t, ch)
	assert.Equal(t, "Hel", got.Delta)
	assert.Equal(t, StatusStreaming, got.Status)
}

func TestChannel_SnapshotDeliveredToLateSubscriber(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "", StatusCreated))

	// Subscribe after the publish - snapshot must still arrive first
	ch, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")

	got := recvOne(t, ch)
	assert.Equal(t, StatusCreated, got.Status)

	// A later publish follows the snapshot
	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "Hi", StatusStreaming))
	got = recvOne(t, ch)
	assert.Equal(t, "Hi", got.Delta)
}

func TestChannel_OrderPreservedAndDeltasConcatenate(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")

	fragments := make([]string, 50)
	for i := range fragments {
		fragments[i] = fmt.Sprintf("frag-%02d ", i)
	}

	go func() {
		for _, f := range fragments {
			c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", f, StatusStreaming))
		}
		full := strings.Join(fragments, "")
		final := makeEntry("conv-1", "msg-1", "", StatusCompleted)
		final.Content = full
		c.Publish("conv-1", "msg-1", final)
	}()

	var rebuilt strings.Builder
	var final *Entry
	for {
		e := recvOne(t, ch)
		if e.Terminal() {
			final = e
			break
		}
		rebuilt.WriteString(e.Delta)
	}

	assert.Equal(t, strings.Join(fragments, ""), rebuilt.String())
	assert.Equal(t, rebuilt.String(), final.Content)
	assert.Empty(t, final.Delta)
}

func TestChannel_SlowSubscriberLosesNothing(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")

	// Publish far more than any internal buffer before reading anything
	const n = 500
	for i := 0; i < n; i++ {
		c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", fmt.Sprintf("%d,", i), StatusStreaming))
	}

	for i := 0; i < n; i++ {
		e := recvOne(t, ch)
		assert.Equal(t, fmt.Sprintf("%d,", i), e.Delta, "entry %d out of order or dropped", i)
	}
}

func TestChannel_DifferentKeysAreIsolated(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch1, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")
	ch2, _ := c.Subscribe(context.Background(), "conv-1", "msg-2")

	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "x", StatusStreaming))

	got := recvOne(t, ch1)
	assert.Equal(t, "x", got.Delta)

	select {
	case <-ch2:
		t.Fatal("subscriber for msg-2 should not receive entries for msg-1")
	case <-time.After(100 * time.Millisecond):
		// Expected: no entry
	}
}

func TestChannel_MultipleSubscribersAllReceive(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch1, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")
	ch2, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")

	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "y", StatusStreaming))

	for i, ch := range []<-chan *Entry{ch1, ch2} {
		e := recvOne(t, ch)
		assert.Equal(t, "y", e.Delta, "subscriber %d", i)
	}
}

func TestChannel_UnsubscribeClosesChannel(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ch, subID := c.Subscribe(context.Background(), "conv-1", "msg-1")
	c.Unsubscribe("conv-1", "msg-1", subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestChannel_ContextCancellationUnsubscribes(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := c.Subscribe(ctx, "conv-1", "msg-1")

	cancel()

	// The pump closes the channel once cleanup runs
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}
}

func TestChannel_SnapshotSurvivesUnsubscribe(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "", StatusCompleted))

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := c.Subscribe(ctx, "conv-1", "msg-1")
	got := recvOne(t, ch)
	assert.Equal(t, StatusCompleted, got.Status)
	cancel()

	// Resubscribing still yields the snapshot
	ch2, _ := c.Subscribe(context.Background(), "conv-1", "msg-1")
	got = recvOne(t, ch2)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestChannel_ConcurrentPublishersOnDistinctKeys(t *testing.T) {
	c := NewChannel(nil)
	defer c.Close()

	const keys = 8
	const perKey = 100

	chans := make([]<-chan *Entry, keys)
	for k := 0; k < keys; k++ {
		chans[k], _ = c.Subscribe(context.Background(), "conv-1", fmt.Sprintf("msg-%d", k))
	}

	var wg sync.WaitGroup
	for k := 0; k < keys; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			msgID := fmt.Sprintf("msg-%d", k)
			for i := 0; i < perKey; i++ {
				c.Publish("conv-1", msgID, makeEntry("conv-1", msgID, fmt.Sprintf("%d", i), StatusStreaming))
			}
		}(k)
	}
	wg.Wait()

	// Each key's subscriber sees its own sequence, in order
	for k := 0; k < keys; k++ {
		for i := 0; i < perKey; i++ {
			e := recvOne(t, chans[k])
			require.Equal(t, fmt.Sprintf("%d", i), e.Delta, "key %d entry %d", k, i)
		}
	}
}

func TestChannel_PublishAfterCloseIsNoOp(t *testing.T) {
	c := NewChannel(nil)
	c.Close()

	// Must not panic
	c.Publish("conv-1", "msg-1", makeEntry("conv-1", "msg-1", "x", StatusStreaming))
	assert.Nil(t, c.Snapshot("conv-1", "msg-1"))
}
