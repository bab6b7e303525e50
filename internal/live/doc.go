// Package live provides the in-memory pub/sub channel carrying incremental
// generation updates to subscribers.
//
// Entries are keyed by (conversation ID, message ID). Each publish overwrites
// the key's snapshot, so a late subscriber always starts from the latest
// state and then receives every subsequent update. Delivery for one key is
// strictly ordered with no drops, which is the contract clients rely on to
// reconstruct a message by concatenating deltas. Nothing in this package is
// persisted; durable history lives in internal/store.
package live
