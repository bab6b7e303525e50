// Package conversation is the core of the gateway: the orchestrator that
// drives one chat turn, and the reconciler that owns durable history.
//
// # Turn lifecycle
//
// StartTurn publishes the user's message as a completed live entry, enqueues
// its history write, and publishes the assistant placeholder - all before
// returning, so the HTTP layer can acknowledge with addressing info the
// client needs to subscribe. The assistant reply then runs in its own
// goroutine: stream fragments are relayed as delta-only live entries, and
// exhaustion publishes the completed entry with the full accumulated text
// followed by a finalize event to the reconciler. Any failure (generator
// error, fragment timeout) instead publishes a completed entry with a fixed
// error body and skips the reconciler: error turns are never persisted.
//
// # Reconciliation
//
// The reconciler is the only writer of conversation history. It consumes
// finalize events from an explicit queue, serializes read-modify-write per
// conversation ID with a striped mutex, and merges by message ID: an existing
// ID is replaced in place, a new one appended. Combined with a dedupe cache
// over delivery keys, retried or duplicated finalize events are silently
// idempotent. Store failures are logged at error severity and never crash
// the process; the live stream the client already saw is unaffected.
package conversation
