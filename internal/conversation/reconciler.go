// ABOUTME: Reconciler merges finalized messages into durable history exactly once
// ABOUTME: Consumes an explicit finalize queue with per-conversation write serialization

package conversation

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/murmur-chat/murmur-gateway/internal/dedupe"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

const (
	// finalizeQueueSize bounds the backlog of pending history writes
	// per worker shard.
	finalizeQueueSize = 128

	// finalizeWorkers is the number of queue shards. Events are routed to
	// a shard by conversation ID, so one conversation's writes apply in
	// enqueue order while different conversations progress independently.
	finalizeWorkers = 4

	// reconcileTimeout bounds each store read-modify-write cycle.
	reconcileTimeout = 5 * time.Second

	// conversationLockStripes fixes the size of the lock set guarding
	// read-modify-write cycles. Conversations that hash to the same stripe
	// share a lock.
	conversationLockStripes = 64

	// Dedupe window for retried finalize deliveries.
	dedupeTTL     = 5 * time.Minute
	dedupeMaxSize = 4096
)

// SaveRequest is a finalize event: one message ready to be merged into
// durable history.
type SaveRequest struct {
	ConversationID string
	MessageID      string
	Body           string
	Author         string
	Timestamp      time.Time
}

// dedupeKey identifies one finalize delivery; retried deliveries of the same
// event carry identical fields.
func (r *SaveRequest) dedupeKey() string {
	return r.ConversationID + "|" + r.MessageID + "|" + r.Timestamp.UTC().Format(time.RFC3339Nano)
}

// Reconciler owns all mutations of conversation history. The orchestrator
// hands it finalize events through an explicit queue (fire and forget); each
// event is merged into history with read-modify-write under a
// per-conversation mutex, deduplicating by message ID so retried deliveries
// are silently idempotent.
type Reconciler struct {
	store  store.Store
	seen   *dedupe.Cache
	queues []chan *SaveRequest
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	locks [conversationLockStripes]sync.Mutex
}

// NewReconciler creates a reconciler and starts its queue workers.
// Pass nil logger for default.
func NewReconciler(st store.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:  st,
		seen:   dedupe.New(dedupeTTL, dedupeMaxSize),
		queues: make([]chan *SaveRequest, finalizeWorkers),
		logger: logger.With("component", "reconciler"),
	}

	r.wg.Add(finalizeWorkers)
	for i := 0; i < finalizeWorkers; i++ {
		r.queues[i] = make(chan *SaveRequest, finalizeQueueSize)
		go r.worker(r.queues[i])
	}

	return r
}

// conversationHash maps a conversation ID to a stable hash used for queue
// sharding and lock striping.
func conversationHash(conversationID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return h.Sum32()
}

// shardFor routes a conversation ID to its queue shard.
func (r *Reconciler) shardFor(conversationID string) chan *SaveRequest {
	return r.queues[conversationHash(conversationID)%uint32(len(r.queues))]
}

// Enqueue hands a finalize event to its conversation's queue shard. Events
// for one conversation apply in enqueue order. Events enqueued after Close
// are dropped with a warning.
func (r *Reconciler) Enqueue(req *SaveRequest) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("finalize event dropped, reconciler closed",
			"conversation_id", req.ConversationID,
			"message_id", req.MessageID)
		return
	}
	r.shardFor(req.ConversationID) <- req
}

// worker drains one queue shard until it is closed.
func (r *Reconciler) worker(queue chan *SaveRequest) {
	defer r.wg.Done()

	for req := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		if err := r.Reconcile(ctx, req); err != nil {
			// The live stream already delivered; the turn is just not
			// durably recorded. Logged for operational visibility.
			r.logger.Error("failed to reconcile message into history",
				"error", err,
				"conversation_id", req.ConversationID,
				"message_id", req.MessageID)
		}
		cancel()
	}
}

// Reconcile merges one finalized message into the conversation's history.
// If a message with the same ID already exists it is replaced in place,
// keeping its position; otherwise it is appended. Calling twice with
// identical arguments leaves history with exactly one copy.
func (r *Reconciler) Reconcile(ctx context.Context, req *SaveRequest) error {
	key := req.dedupeKey()
	if r.seen.Check(key) {
		r.logger.Debug("duplicate finalize event ignored",
			"conversation_id", req.ConversationID,
			"message_id", req.MessageID)
		return nil
	}

	lock := r.conversationLock(req.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := r.store.GetConversation(ctx, req.ConversationID)
	if err == store.ErrNotFound {
		conv = &store.Conversation{
			ID:        req.ConversationID,
			CreatedAt: req.Timestamp,
		}
	} else if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	msg := store.Message{
		ID:        req.MessageID,
		Body:      req.Body,
		Author:    req.Author,
		CreatedAt: req.Timestamp,
	}

	replaced := false
	for i := range conv.Messages {
		if conv.Messages[i].ID == req.MessageID {
			conv.Messages[i] = msg
			replaced = true
			break
		}
	}
	if !replaced {
		conv.Messages = append(conv.Messages, msg)
	}
	conv.UpdatedAt = req.Timestamp

	if err := r.store.PutConversation(ctx, conv); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}

	// Mark only after a successful write so a failed attempt can be retried
	r.seen.Mark(key)

	r.logger.Debug("message reconciled",
		"conversation_id", req.ConversationID,
		"message_id", req.MessageID,
		"replaced", replaced,
		"total_messages", len(conv.Messages))
	return nil
}

// conversationLock returns the mutex guarding one conversation's
// read-modify-write cycle. The lock set is a fixed stripe array, so memory
// stays bounded no matter how many conversations the process sees; two
// conversations on the same stripe serialize against each other, which is
// harmless.
func (r *Reconciler) conversationLock(conversationID string) *sync.Mutex {
	return &r.locks[conversationHash(conversationID)%conversationLockStripes]
}

// Close stops accepting new events, drains the queue, and waits for workers.
// Safe to call multiple times.
func (r *Reconciler) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, q := range r.queues {
		close(q)
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.seen.Close()
	r.logger.Debug("reconciler closed")
}
