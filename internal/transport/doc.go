// Package transport defines the boundary to the peer-to-peer link and two
// implementations of it.
//
// A Session is an opaque channel to exactly one peer. It reports
// reachability, carries byte payloads (with or without a reply) and reports
// lifecycle changes to a single registered Delegate. Sessions deliver every
// delegate callback from one dispatcher goroutine, so a delegate never sees
// two callbacks at once.
//
// MemLink pairs two in-memory sessions in one process; it is used by the
// demo, the TUI and tests, and lets callers toggle reachability.
// WSSession runs the same contract over a websocket connection.
package transport
