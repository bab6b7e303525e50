// Package store provides persistent conversation history storage using SQLite.
//
// # Architecture
//
// The package exposes a single Store interface with whole-record semantics:
//
//   - GetConversation: load a conversation and its messages, or ErrNotFound
//   - PutConversation: overwrite the entire record (not a field patch)
//
// The store deliberately performs no locking. The reconciler in
// internal/conversation owns the read-modify-write cycle and serializes
// writers per conversation ID; keeping the store dumb makes that discipline
// auditable in one place.
//
// # Data Models
//
//   - Conversation: ordered message history with created/updated timestamps
//   - Message: immutable finalized message (ID, Body, Author, CreatedAt)
//
// Message order is insertion order, persisted through a seq column. Replacing
// a message in place keeps its seq, so duplicate finalize deliveries never
// reorder history.
//
// # SQLite Configuration
//
// The store uses SQLite (modernc.org/sqlite, pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC3339 TEXT. The schema is created automatically
// on startup.
//
// # Testing
//
// Use NewMockStore() for unit tests; it supports injecting read/write
// failures via GetErr and PutErr. Use NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
