// Package coordinator implements the session coordinator: the only component
// that touches both a device's Store and its transport Session.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every input (a local send trigger, a transport lifecycle callback, an
// inbound payload, a send completion) is turned into an event and pushed onto
// an unbounded FIFO queue. Coordinator.Run dequeues and processes events one
// at a time on a single goroutine, so the connection state machine and the
// in-flight flag need no further coordination.
//
// Send path:
//  1. Send() enqueues a send request and returns immediately.
//  2. If the peer is not reachable the request is skipped; state is unchanged.
//  3. If a transfer is outstanding the request is rejected.
//  4. Otherwise the full Store snapshot is encoded and handed to the session;
//     the session's completion is enqueued as another event.
//
// Receive path:
//  1. The payload is decoded into an ordered list of records.
//  2. On success the Store is overwritten and the state becomes Succeeded.
//  3. On failure the Store is left untouched, the cause is logged and the
//     state becomes Failed.
//  4. A payload expecting a reply is always answered, with an ack or empty.
//
// Observers receive Notifications through Subscribe. Delivery never blocks the
// loop; a full subscriber buffer drops the notification.
package coordinator
