package coordinator

import (
	"sync"

	"github.com/roach88/pairsync/internal/transport"
)

type eventType int

const (
	eventSend eventType = iota + 1
	eventSendDone
	eventActivation
	eventReachability
	eventMessage
	eventInactive
	eventDeactivate
	eventFlush
)

func (t eventType) String() string {
	switch t {
	case eventSend:
		return "send"
	case eventSendDone:
		return "send_done"
	case eventActivation:
		return "activation"
	case eventReachability:
		return "reachability"
	case eventMessage:
		return "message"
	case eventInactive:
		return "inactive"
	case eventDeactivate:
		return "deactivate"
	case eventFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// event is one unit of work for the loop. Only the fields relevant to Type
// are set.
type event struct {
	Type eventType

	// eventSendDone
	Attempt int64
	Reply   []byte

	// eventActivation
	Activation transport.ActivationState

	// eventReachability
	Reachable bool

	// eventMessage
	Payload []byte
	ReplyTo chan<- []byte // nil for one-way messages

	// eventSendDone, eventActivation
	Err error

	// eventFlush
	Flushed chan struct{}
}

// eventQueue is an unbounded, thread-safe FIFO.
//
// Delegate callbacks enqueue from the session's dispatcher goroutine and
// Send enqueues from callers; only Run dequeues. Unbounded so enqueueing never
// blocks a transport goroutine.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds e at the back. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.events = append(q.events, e)

	// A buffer of one coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}
	e := q.events[0]
	q.events[0] = event{} // release payload references
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return e, true
}

// Wait returns a channel that fires when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes the waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drain removes and returns everything still queued.
func (q *eventQueue) Drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.events
	q.events = nil
	return out
}
