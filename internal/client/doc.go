// Package client is a Go client for the murmur-gateway HTTP API. It submits
// chat turns, reads durable history, and consumes per-message SSE live
// streams. The murmur CLI is built on it; other Go programs can use it to
// talk to a gateway directly.
package client
