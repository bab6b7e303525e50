// ABOUTME: In-memory per-message pub/sub channel for live conversation updates
// ABOUTME: Guarantees publish-order delivery with no drops for a single key

package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Channel provides in-memory pub/sub for live entries, keyed by
// (conversationID, messageID). Publishing overwrites the current snapshot for
// the key and appends to every subscriber's queue. Subscribers always receive
// the current snapshot first, then every later publish in publish order.
//
// Delivery for one key is lossless and ordered: each subscriber owns an
// unbounded queue drained by its own pump goroutine, so a slow consumer never
// blocks the publisher and never loses or reorders entries. There is no
// ordering guarantee across different keys.
type Channel struct {
	mu     sync.RWMutex
	topics map[string]*topic // entryKey -> topic
	logger *slog.Logger
	closed bool
}

// topic holds the latest snapshot and subscribers for one entry key.
type topic struct {
	current *Entry
	subs    map[string]*subscriber // subID -> subscriber
}

// subscriber buffers published entries and pumps them to its out channel.
type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Entry
	closed bool

	out  chan *Entry
	done chan struct{}
}

// entryKey builds the map key for a (conversation, message) pair.
func entryKey(conversationID, messageID string) string {
	return conversationID + "/" + messageID
}

// NewChannel creates a live update channel. Pass nil logger for default.
func NewChannel(logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		topics: make(map[string]*topic),
		logger: logger.With("component", "live"),
	}
}

// Publish records entry as the current snapshot for its key and delivers it
// to all subscribers of that key, in publish order.
func (c *Channel) Publish(conversationID, messageID string, entry *Entry) {
	key := entryKey(conversationID, messageID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	tp, ok := c.topics[key]
	if !ok {
		tp = &topic{subs: make(map[string]*subscriber)}
		c.topics[key] = tp
	}
	tp.current = entry
	targets := make([]*subscriber, 0, len(tp.subs))
	for _, sub := range tp.subs {
		targets = append(targets, sub)
	}
	c.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(entry)
	}

	c.logger.Debug("published live entry",
		"conversation_id", conversationID,
		"message_id", messageID,
		"status", entry.Status)
}

// Snapshot returns the current entry for the key, or nil if none was
// published yet.
func (c *Channel) Snapshot(conversationID, messageID string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tp, ok := c.topics[entryKey(conversationID, messageID)]
	if !ok {
		return nil
	}
	return tp.current
}

// Subscribe registers a subscriber for the given key. The returned channel
// first yields the current snapshot (if one exists), then every later publish
// in order. The subscription is cleaned up when ctx is cancelled or
// Unsubscribe is called; the channel is closed on cleanup.
func (c *Channel) Subscribe(ctx context.Context, conversationID, messageID string) (<-chan *Entry, string) {
	key := entryKey(conversationID, messageID)
	subID := uuid.New().String()

	sub := &subscriber{out: make(chan *Entry), done: make(chan struct{})}
	sub.cond = sync.NewCond(&sub.mu)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(sub.out)
		return sub.out, subID
	}
	tp, ok := c.topics[key]
	if !ok {
		tp = &topic{subs: make(map[string]*subscriber)}
		c.topics[key] = tp
	}
	tp.subs[subID] = sub
	if tp.current != nil {
		sub.queue = append(sub.queue, tp.current)
	}
	c.mu.Unlock()

	go sub.pump()

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		c.Unsubscribe(conversationID, messageID, subID)
	}()

	c.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"message_id", messageID,
		"sub_id", subID)

	return sub.out, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (c *Channel) Unsubscribe(conversationID, messageID, subID string) {
	key := entryKey(conversationID, messageID)

	c.mu.Lock()
	tp, ok := c.topics[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	sub, exists := tp.subs[subID]
	if !exists {
		c.mu.Unlock()
		return
	}
	delete(tp.subs, subID)
	// Topics with a snapshot stay alive so late subscribers still get it;
	// only drop entries that never saw a publish.
	if len(tp.subs) == 0 && tp.current == nil {
		delete(c.topics, key)
	}
	c.mu.Unlock()

	sub.stop()

	c.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"message_id", messageID,
		"sub_id", subID)
}

// Close shuts down the channel and all subscriber pumps.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var subs []*subscriber
	for _, tp := range c.topics {
		for id, sub := range tp.subs {
			subs = append(subs, sub)
			delete(tp.subs, id)
		}
	}
	c.topics = make(map[string]*topic)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}

	c.logger.Debug("live channel closed")
}

// enqueue appends an entry to the subscriber queue and wakes the pump.
func (s *subscriber) enqueue(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, entry)
	s.cond.Signal()
}

// stop marks the subscriber closed and wakes the pump so it can exit, even
// mid-send to a consumer that is no longer reading.
func (s *subscriber) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Signal()
}

// pump drains the queue into the out channel in order. It exits once the
// subscriber is stopped.
func (s *subscriber) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		entry := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- entry:
		case <-s.done:
			return
		}
	}
}
