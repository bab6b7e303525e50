// Package dedupe provides a TTL cache the reconciler uses to skip duplicate
// deliveries of the same finalize event within a configurable window.
package dedupe
