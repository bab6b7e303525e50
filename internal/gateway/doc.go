// Package gateway wires the murmur-gateway server together and exposes it
// over HTTP.
//
// # Endpoints
//
// POST /api/chat/message accepts a user message, starts the assistant turn,
// and immediately returns the assistant placeholder entry (status created)
// along with the conversation ID, both message IDs, and the SSE path for the
// assistant's live stream.
//
// GET /api/chat/conversations/{id} returns the durable history of one
// conversation: 404 with error "conversation_not_found" when it does not
// exist, 503 with "storage_unavailable" when the store cannot be read.
//
// GET /api/chat/conversations/{id}/messages/{messageID}/events streams the
// message's live entries as Server-Sent Events ("event: update" frames). The
// current snapshot is delivered first, then every later update in order; the
// stream ends after the terminal entry.
//
// GET /healthz reports liveness.
//
// # Lifecycle
//
// Run serves until the context is canceled, then shuts down in dependency
// order: HTTP server first, then in-flight assistant turns, the finalize
// queue, the live channel, and finally the store.
package gateway
